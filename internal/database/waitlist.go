package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/Masterminds/squirrel"
)

var waitlistColumns = []string{
	"id", "user_id", "court_id", "start_time", "end_time", "coach_id",
	"racket_count", "shoes_count", "status", "position", "created_at", "notified_at", "booking_id",
}

func scanWaitlistEntry(row interface{ Scan(...interface{}) error }) (*models.WaitlistEntry, error) {
	var (
		e          models.WaitlistEntry
		start, end string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.CourtID, &start, &end, &e.CoachID,
		&e.RacketCount, &e.ShoesCount, &e.Status, &e.Position, &e.CreatedAt, &e.NotifiedAt, &e.BookingID)
	if err != nil {
		return nil, err
	}
	if e.Window, err = models.ParseTimeWindow(start, end); err != nil {
		return nil, fmt.Errorf("waitlist entry %s: %w", e.ID, err)
	}
	return &e, nil
}

func bucketEq(bucket models.Bucket) squirrel.Eq {
	return squirrel.Eq{
		"court_id":   bucket.CourtID,
		"start_time": models.FormatTimestamp(bucket.Window.Start),
		"end_time":   models.FormatTimestamp(bucket.Window.End),
	}
}

func (q *queries) selectWaitlist(ctx context.Context, builder squirrel.SelectBuilder) ([]*models.WaitlistEntry, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build waitlist query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *queries) GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	query, args, err := squirrel.Select(waitlistColumns...).
		From("waitlist").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build waitlist query: %w", err)
	}

	e, err := scanWaitlistEntry(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return e, nil
}

// ListWaitlistBucket returns the active entries of a bucket ordered by position.
func (q *queries) ListWaitlistBucket(ctx context.Context, bucket models.Bucket) ([]*models.WaitlistEntry, error) {
	return q.selectWaitlist(ctx, squirrel.Select(waitlistColumns...).
		From("waitlist").
		Where(bucketEq(bucket)).
		Where(squirrel.NotEq{"position": nil}).
		OrderBy("position ASC"))
}

// FindActiveWaitlistEntry returns the user's active entry in bucket, or nil.
func (q *queries) FindActiveWaitlistEntry(ctx context.Context, userID string, bucket models.Bucket) (*models.WaitlistEntry, error) {
	entries, err := q.selectWaitlist(ctx, squirrel.Select(waitlistColumns...).
		From("waitlist").
		Where(bucketEq(bucket)).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.NotEq{"position": nil}).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (q *queries) ListUserWaitlist(ctx context.Context, userID string) ([]*models.WaitlistEntry, error) {
	return q.selectWaitlist(ctx, squirrel.Select(waitlistColumns...).
		From("waitlist").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("start_time ASC", "created_at ASC"))
}

func (q *queries) ListAllWaitlist(ctx context.Context) ([]*models.WaitlistEntry, error) {
	return q.selectWaitlist(ctx, squirrel.Select(waitlistColumns...).
		From("waitlist").
		OrderBy("court_id ASC", "start_time ASC", "end_time ASC", "position ASC", "created_at ASC"))
}

// ListStaleWaitlist returns waiting entries whose window has already started at now.
func (q *queries) ListStaleWaitlist(ctx context.Context, now time.Time) ([]*models.WaitlistEntry, error) {
	return q.selectWaitlist(ctx, squirrel.Select(waitlistColumns...).
		From("waitlist").
		Where(squirrel.Eq{"status": models.WaitlistWaiting}).
		Where(squirrel.NotEq{"position": nil}).
		Where(squirrel.LtOrEq{"start_time": models.FormatTimestamp(now)}).
		OrderBy("court_id ASC", "start_time ASC", "end_time ASC", "position ASC"))
}

func (q *queries) InsertWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query, args, err := squirrel.Insert("waitlist").
		Columns(waitlistColumns...).
		Values(e.ID, e.UserID, e.CourtID,
			models.FormatTimestamp(e.Window.Start), models.FormatTimestamp(e.Window.End), e.CoachID,
			e.RacketCount, e.ShoesCount, e.Status, e.Position, e.CreatedAt, e.NotifiedAt, e.BookingID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert waitlist: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return nil
}

// MarkWaitlistNotified records a successful promotion and takes the entry out of the queue.
func (q *queries) MarkWaitlistNotified(ctx context.Context, id, bookingID string, at time.Time) error {
	return q.updateWaitlistEntry(ctx, id, squirrel.Eq{
		"status":      models.WaitlistNotified,
		"notified_at": at,
		"booking_id":  bookingID,
		"position":    nil,
	})
}

func (q *queries) MarkWaitlistExpired(ctx context.Context, id string) error {
	return q.updateWaitlistEntry(ctx, id, squirrel.Eq{
		"status":   models.WaitlistExpired,
		"position": nil,
	})
}

func (q *queries) updateWaitlistEntry(ctx context.Context, id string, set map[string]interface{}) error {
	query, args, err := squirrel.Update("waitlist").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update waitlist: %w", err)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteWaitlistEntry(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM waitlist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ShiftWaitlistPositions closes the gap left at position after.
func (q *queries) ShiftWaitlistPositions(ctx context.Context, bucket models.Bucket, after int) error {
	query, args, err := squirrel.Update("waitlist").
		Set("position", squirrel.Expr("position - 1")).
		Where(bucketEq(bucket)).
		Where(squirrel.Gt{"position": after}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build shift waitlist: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to shift waitlist positions: %w", err)
	}
	return nil
}
