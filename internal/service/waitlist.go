package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PromotionResult describes one promotion attempt for a bucket.
type PromotionResult struct {
	Promoted bool
	Entry    *models.WaitlistEntry
	Booking  *models.Booking
	// Reason is set when the head entry could not be admitted.
	Reason string
}

// WaitlistManager keeps one FIFO queue per (court, window) bucket. Every
// queue mutation holds the bucket lock, which is always taken before any
// resource lock.
type WaitlistManager struct {
	store     domain.Store
	locker    domain.Locker
	admission *AdmissionController
	events    domain.EventPublisher
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewWaitlistManager(
	store domain.Store,
	locker domain.Locker,
	admission *AdmissionController,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *WaitlistManager {
	return &WaitlistManager{
		store:     store,
		locker:    locker,
		admission: admission,
		events:    eventBus,
		logger:    logger,
		now:       time.Now,
	}
}

func bucketLockKey(b models.Bucket) string {
	return "waitlist:" + b.Key()
}

// Join appends the request to its bucket with status waiting.
func (m *WaitlistManager) Join(ctx context.Context, req models.BookingRequest) (*models.WaitlistEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if _, err := m.store.GetCourt(ctx, req.CourtID); err != nil {
		return nil, err
	}
	if req.HasCoach() {
		if _, err := m.store.GetCoach(ctx, *req.CoachID); err != nil {
			return nil, err
		}
	}

	bucket := req.Bucket()
	unlock, err := lockWithMetrics(ctx, m.locker, bucketLockKey(bucket))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var entry *models.WaitlistEntry
	err = m.store.RunInTx(ctx, func(tx domain.Tx) error {
		existing, err := tx.FindActiveWaitlistEntry(ctx, req.UserID, bucket)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("waitlist entry %s: %w", existing.ID, domain.ErrAlreadyWaitlisted)
		}

		active, err := tx.ListWaitlistBucket(ctx, bucket)
		if err != nil {
			return err
		}
		position := len(active) + 1

		entry = &models.WaitlistEntry{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			CourtID:     req.CourtID,
			Window:      req.Window,
			CoachID:     req.CoachID,
			RacketCount: req.RacketCount,
			ShoesCount:  req.ShoesCount,
			Status:      models.WaitlistWaiting,
			Position:    &position,
			CreatedAt:   m.now().UTC(),
		}
		return tx.InsertWaitlistEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncWaitlist("joined")
	m.logger.Info().
		Str("waitlist_id", entry.ID).
		Str("bucket", bucket.Key()).
		Int("position", *entry.Position).
		Msg("Joined waitlist")
	m.publish(events.EventWaitlistJoined, entry, *entry.Position, "")

	return entry, nil
}

func (m *WaitlistManager) GetPosition(ctx context.Context, userID string, bucket models.Bucket) (models.WaitlistPosition, error) {
	if !bucket.Window.Valid() {
		return models.WaitlistPosition{}, fmt.Errorf("%w: end_time must be after start_time", domain.ErrInvalidWindow)
	}

	active, err := m.store.ListWaitlistBucket(ctx, bucket)
	if err != nil {
		return models.WaitlistPosition{}, err
	}

	result := models.WaitlistPosition{TotalWaiting: len(active)}
	for _, e := range active {
		if e.UserID == userID {
			pos := *e.Position
			result.InWaitlist = true
			result.Position = &pos
			break
		}
	}
	return result, nil
}

// Promote tries to admit the head of the bucket. A failed admission leaves
// the entry waiting and does not try the next one.
func (m *WaitlistManager) Promote(ctx context.Context, bucket models.Bucket) (*PromotionResult, error) {
	unlock, err := lockWithMetrics(ctx, m.locker, bucketLockKey(bucket))
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := m.store.ListWaitlistBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	var head *models.WaitlistEntry
	for _, e := range active {
		if e.Status == models.WaitlistWaiting {
			head = e
			break
		}
	}
	if head == nil {
		return &PromotionResult{}, nil
	}

	position := *head.Position
	notifiedAt := m.now().UTC()
	booking, err := m.admission.AdmitThen(ctx, head.Request(), func(ctx context.Context, tx domain.Tx, b *models.Booking) error {
		if err := tx.MarkWaitlistNotified(ctx, head.ID, b.ID, notifiedAt); err != nil {
			return err
		}
		if err := tx.ShiftWaitlistPositions(ctx, bucket, position); err != nil {
			return err
		}
		return tx.EnqueueNotification(ctx, events.EventWaitlistPromoted, head.UserID, m.payload(head, 0, b.ID))
	})
	if err != nil {
		var admErr *AdmissionError
		if errors.As(err, &admErr) {
			metrics.IncWaitlist("blocked")
			m.logger.Info().
				Str("waitlist_id", head.ID).
				Str("bucket", bucket.Key()).
				Str("reason", admErr.Reason).
				Msg("Waitlist head could not be admitted")
			return &PromotionResult{Entry: head, Reason: admErr.Reason}, nil
		}
		return nil, err
	}

	head.Status = models.WaitlistNotified
	head.Position = nil
	head.NotifiedAt = &notifiedAt
	head.BookingID = &booking.ID

	metrics.IncWaitlist("promoted")
	m.logger.Info().
		Str("waitlist_id", head.ID).
		Str("booking_id", booking.ID).
		Str("bucket", bucket.Key()).
		Msg("Waitlist entry promoted")
	m.publish(events.EventWaitlistPromoted, head, 0, booking.ID)

	return &PromotionResult{Promoted: true, Entry: head, Booking: booking}, nil
}

// OnRelease is the admission release listener. Promotion errors are logged
// because the cancellation that triggered them has already committed.
func (m *WaitlistManager) OnRelease(ctx context.Context, bucket models.Bucket) {
	if _, err := m.Promote(ctx, bucket); err != nil {
		m.logger.Error().Err(err).Str("bucket", bucket.Key()).Msg("Waitlist promotion failed")
	}
}

// Withdraw removes the caller's active entry and closes the gap behind it.
func (m *WaitlistManager) Withdraw(ctx context.Context, userID, entryID string) error {
	entry, err := m.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return fmt.Errorf("waitlist entry %s: %w", entryID, domain.ErrForbidden)
	}

	bucket := entry.Bucket()
	unlock, err := lockWithMetrics(ctx, m.locker, bucketLockKey(bucket))
	if err != nil {
		return err
	}
	defer unlock()

	err = m.store.RunInTx(ctx, func(tx domain.Tx) error {
		current, err := tx.GetWaitlistEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return fmt.Errorf("%w: waitlist entry %s is %s", domain.ErrInvalidRequest, entryID, current.Status)
		}
		if err := tx.DeleteWaitlistEntry(ctx, entryID); err != nil {
			return err
		}
		return tx.ShiftWaitlistPositions(ctx, bucket, *current.Position)
	})
	if err != nil {
		return err
	}

	metrics.IncWaitlist("withdrawn")
	m.logger.Info().Str("waitlist_id", entryID).Str("bucket", bucket.Key()).Msg("Left waitlist")
	m.publish(events.EventWaitlistLeft, entry, 0, "")
	return nil
}

// ExpireStale expires waiting entries whose window has started by now and
// returns how many were expired.
func (m *WaitlistManager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	now = models.WallClock(now)
	stale, err := m.store.ListStaleWaitlist(ctx, now)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	var buckets []models.Bucket
	for _, e := range stale {
		b := e.Bucket()
		if !seen[b.Key()] {
			seen[b.Key()] = true
			buckets = append(buckets, b)
		}
	}

	expired := 0
	for _, bucket := range buckets {
		n, err := m.expireBucket(ctx, bucket, now)
		expired += n
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

func (m *WaitlistManager) expireBucket(ctx context.Context, bucket models.Bucket, now time.Time) (int, error) {
	unlock, err := lockWithMetrics(ctx, m.locker, bucketLockKey(bucket))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var expired []*models.WaitlistEntry
	err = m.store.RunInTx(ctx, func(tx domain.Tx) error {
		active, err := tx.ListWaitlistBucket(ctx, bucket)
		if err != nil {
			return err
		}
		// walk from the tail so each shift only touches already-expired rows
		for i := len(active) - 1; i >= 0; i-- {
			e := active[i]
			if e.Status != models.WaitlistWaiting || e.Window.Start.After(now) {
				continue
			}
			if err := tx.MarkWaitlistExpired(ctx, e.ID); err != nil {
				return err
			}
			if err := tx.ShiftWaitlistPositions(ctx, bucket, *e.Position); err != nil {
				return err
			}
			if err := tx.EnqueueNotification(ctx, events.EventWaitlistExpired, e.UserID, m.payload(e, 0, "")); err != nil {
				return err
			}
			expired = append(expired, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		e.Status = models.WaitlistExpired
		e.Position = nil
		metrics.IncWaitlist("expired")
		m.publish(events.EventWaitlistExpired, e, 0, "")
	}
	if len(expired) > 0 {
		m.logger.Info().Str("bucket", bucket.Key()).Int("expired", len(expired)).Msg("Expired stale waitlist entries")
	}
	return len(expired), nil
}

func (m *WaitlistManager) ListForUser(ctx context.Context, userID string) ([]*models.WaitlistEntry, error) {
	return m.store.ListUserWaitlist(ctx, userID)
}

func (m *WaitlistManager) payload(e *models.WaitlistEntry, position int, bookingID string) events.WaitlistEventPayload {
	return events.WaitlistEventPayload{
		WaitlistID: e.ID,
		UserID:     e.UserID,
		CourtID:    e.CourtID,
		StartTime:  models.FormatTimestamp(e.Window.Start),
		EndTime:    models.FormatTimestamp(e.Window.End),
		Status:     e.Status,
		Position:   position,
		BookingID:  bookingID,
	}
}

func (m *WaitlistManager) publish(eventType string, e *models.WaitlistEntry, position int, bookingID string) {
	if err := m.events.PublishJSON(eventType, m.payload(e, position, bookingID)); err != nil {
		m.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
