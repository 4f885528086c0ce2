package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"id", "user_id", "court_id", "coach_id", "start_time", "end_time",
	"racket_count", "shoes_count", "base_price", "pricing_modifiers",
	"equipment_fee", "coach_fee", "total_price", "status", "created_at", "cancelled_at",
}

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		modifiers  string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.CourtID, &b.CoachID, &start, &end,
		&b.RacketCount, &b.ShoesCount, &b.BasePrice, &modifiers,
		&b.EquipmentFee, &b.CoachFee, &b.TotalPrice, &b.Status, &b.CreatedAt, &b.CancelledAt)
	if err != nil {
		return nil, err
	}
	if b.Window, err = models.ParseTimeWindow(start, end); err != nil {
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(modifiers), &b.PricingModifiers); err != nil {
		return nil, fmt.Errorf("booking %s: decode pricing modifiers: %w", b.ID, err)
	}
	return &b, nil
}

// CourtHasOverlap reports whether a confirmed booking on the court intersects window.
func (q *queries) CourtHasOverlap(ctx context.Context, courtID string, window models.TimeWindow) (bool, error) {
	return q.hasOverlap(ctx, "court_id", courtID, window)
}

func (q *queries) CoachHasOverlap(ctx context.Context, coachID string, window models.TimeWindow) (bool, error) {
	return q.hasOverlap(ctx, "coach_id", coachID, window)
}

func (q *queries) hasOverlap(ctx context.Context, column, id string, window models.TimeWindow) (bool, error) {
	query, args, err := squirrel.Select("1").
		From("bookings").
		Where(squirrel.Eq{column: id, "status": models.StatusConfirmed}).
		Where(squirrel.Lt{"start_time": models.FormatTimestamp(window.End)}).
		Where(squirrel.Gt{"end_time": models.FormatTimestamp(window.Start)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build overlap query: %w", err)
	}

	var one int
	err = q.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s overlap: %w", column, err)
	}
	return true, nil
}

func (q *queries) InsertBooking(ctx context.Context, b *models.Booking) error {
	modifiers, err := json.Marshal(nonNilModifiers(b.PricingModifiers))
	if err != nil {
		return fmt.Errorf("encode pricing modifiers: %w", err)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	query, args, err := squirrel.Insert("bookings").
		Columns(bookingColumns...).
		Values(b.ID, b.UserID, b.CourtID, b.CoachID,
			models.FormatTimestamp(b.Window.Start), models.FormatTimestamp(b.Window.End),
			b.RacketCount, b.ShoesCount, b.BasePrice, string(modifiers),
			b.EquipmentFee, b.CoachFee, b.TotalPrice, b.Status, b.CreatedAt, b.CancelledAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert booking: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// CancelBooking moves a confirmed booking to cancelled. It returns
// ErrAlreadyCancelled if the booking is not confirmed any more.
func (q *queries) CancelBooking(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`,
		models.StatusCancelled, at, id, models.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if rows == 0 {
		if _, err := q.GetBooking(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("booking %s: %w", id, domain.ErrAlreadyCancelled)
	}
	return nil
}

func (q *queries) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query, args, err := squirrel.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select booking: %w", err)
	}

	b, err := scanBooking(q.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListBookings returns bookings matching filter ordered by start time.
// From/To select bookings overlapping [From, To).
func (q *queries) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	builder := squirrel.Select(bookingColumns...).
		From("bookings").
		OrderBy("start_time ASC", "created_at ASC")

	if filter.UserID != "" {
		builder = builder.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.CourtID != "" {
		builder = builder.Where(squirrel.Eq{"court_id": filter.CourtID})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.Gt{"end_time": models.FormatTimestamp(*filter.From)})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"start_time": models.FormatTimestamp(*filter.To)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bookings: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func nonNilModifiers(m []models.PricingModifier) []models.PricingModifier {
	if m == nil {
		return []models.PricingModifier{}
	}
	return m
}
