package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ReasonCourtUnavailable   = "court_unavailable"
	ReasonCoachUnavailable   = "coach_unavailable"
	ReasonInsufficientRacket = "insufficient_rackets"
	ReasonInsufficientShoes  = "insufficient_shoes"
)

// AdmissionError reports which resource blocked an admission, with the
// availability snapshot taken inside the admission transaction.
type AdmissionError struct {
	Reason string
	Check  models.AvailabilityCheck
}

func (e *AdmissionError) Error() string {
	return "booking not admitted: " + e.Reason
}

func (e *AdmissionError) Unwrap() error {
	return domain.ErrInsufficientCapacity
}

// ReleaseListener is told which bucket a cancellation freed.
type ReleaseListener func(ctx context.Context, bucket models.Bucket)

// AfterAdmit runs inside the admission transaction after the booking row is written.
type AfterAdmit func(ctx context.Context, tx domain.Tx, booking *models.Booking) error

type AdmissionController struct {
	store   domain.Store
	locker  domain.Locker
	ledger  *Ledger
	pricing *PricingEngine
	events  domain.EventPublisher
	logger  *zerolog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	listeners []ReleaseListener
}

func NewAdmissionController(
	store domain.Store,
	locker domain.Locker,
	ledger *Ledger,
	pricing *PricingEngine,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *AdmissionController {
	return &AdmissionController{
		store:   store,
		locker:  locker,
		ledger:  ledger,
		pricing: pricing,
		events:  eventBus,
		logger:  logger,
		now:     time.Now,
	}
}

// OnRelease registers a listener called after every successful cancellation.
func (a *AdmissionController) OnRelease(l ReleaseListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Admit books the request if every resource is free. It never enqueues on failure.
func (a *AdmissionController) Admit(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	return a.AdmitThen(ctx, req, nil)
}

// AdmitThen is Admit with a hook that commits or rolls back together with the booking.
func (a *AdmissionController) AdmitThen(ctx context.Context, req models.BookingRequest, then AfterAdmit) (*models.Booking, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}

	price, err := a.pricing.Calculate(ctx, req)
	if err != nil {
		return nil, err
	}

	claims := ClaimsFor(req)
	unlock, err := lockWithMetrics(ctx, a.locker, LockKeys(claims)...)
	if err != nil {
		metrics.IncAdmission("busy")
		return nil, err
	}
	defer unlock()

	booking := &models.Booking{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		CourtID:     req.CourtID,
		CoachID:     req.CoachID,
		Window:      req.Window,
		RacketCount: req.RacketCount,
		ShoesCount:  req.ShoesCount,
		Status:      models.StatusConfirmed,
		CreatedAt:   a.now().UTC(),
	}
	booking.ApplyPrice(price)

	err = a.store.RunInTx(ctx, func(tx domain.Tx) error {
		check, err := checkAvailability(ctx, tx, req)
		if err != nil {
			return err
		}
		if !check.Available {
			return &AdmissionError{Reason: rejectionReason(req, check), Check: check}
		}

		if _, err := a.ledger.Reserve(ctx, tx, claims); err != nil {
			var capErr *CapacityError
			if errors.As(err, &capErr) {
				return &AdmissionError{Reason: claimReason(capErr.Claim), Check: check}
			}
			return err
		}

		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		if then != nil {
			return then(ctx, tx, booking)
		}
		return nil
	})
	if err != nil {
		var admErr *AdmissionError
		if errors.As(err, &admErr) {
			metrics.IncAdmission(admErr.Reason)
			a.logger.Info().
				Str("court_id", req.CourtID).
				Str("window", req.Window.String()).
				Str("reason", admErr.Reason).
				Msg("Booking rejected")
		}
		return nil, err
	}

	metrics.IncAdmission(models.StatusConfirmed)
	a.logger.Info().
		Str("booking_id", booking.ID).
		Str("court_id", booking.CourtID).
		Str("window", booking.Window.String()).
		Msg("Booking confirmed")
	a.publish(events.EventBookingCreated, booking)

	return booking, nil
}

// Cancel moves a confirmed booking to cancelled, returns its equipment and
// then tells release listeners about the freed bucket.
func (a *AdmissionController) Cancel(ctx context.Context, bookingID string) error {
	booking, err := a.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status == models.StatusCancelled {
		return fmt.Errorf("booking %s: %w", bookingID, domain.ErrAlreadyCancelled)
	}
	if !booking.IsConfirmed() {
		return fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidRequest, bookingID, booking.Status)
	}

	claims := ClaimsFor(models.BookingRequest{
		CourtID:     booking.CourtID,
		CoachID:     booking.CoachID,
		Window:      booking.Window,
		RacketCount: booking.RacketCount,
		ShoesCount:  booking.ShoesCount,
	})

	unlock, err := lockWithMetrics(ctx, a.locker, LockKeys(claims)...)
	if err != nil {
		return err
	}

	cancelledAt := a.now().UTC()
	err = a.store.RunInTx(ctx, func(tx domain.Tx) error {
		if err := tx.CancelBooking(ctx, bookingID, cancelledAt); err != nil {
			return err
		}
		return a.ledger.Release(ctx, tx, Reservation{Claims: claims})
	})
	unlock()
	if err != nil {
		return err
	}

	booking.Status = models.StatusCancelled
	booking.CancelledAt = &cancelledAt

	metrics.IncCancellation()
	a.logger.Info().Str("booking_id", bookingID).Str("court_id", booking.CourtID).Msg("Booking cancelled")
	a.publish(events.EventBookingCancelled, booking)

	a.mu.RLock()
	listeners := append([]ReleaseListener(nil), a.listeners...)
	a.mu.RUnlock()

	bucket := models.Bucket{CourtID: booking.CourtID, Window: booking.Window}
	for _, l := range listeners {
		l(ctx, bucket)
	}
	return nil
}

func (a *AdmissionController) publish(eventType string, b *models.Booking) {
	payload := events.BookingEventPayload{
		BookingID:  b.ID,
		UserID:     b.UserID,
		CourtID:    b.CourtID,
		StartTime:  models.FormatTimestamp(b.Window.Start),
		EndTime:    models.FormatTimestamp(b.Window.End),
		Status:     b.Status,
		TotalPrice: b.TotalPrice.String(),
	}
	if b.CoachID != nil {
		payload.CoachID = *b.CoachID
	}
	if err := a.events.PublishJSON(eventType, payload); err != nil {
		a.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

// rejectionReason picks the first failing check in court, coach, rackets, shoes order.
func rejectionReason(req models.BookingRequest, check models.AvailabilityCheck) string {
	switch {
	case !check.CourtAvailable:
		return ReasonCourtUnavailable
	case !check.CoachAvailable:
		return ReasonCoachUnavailable
	case check.RacketsAvailable < req.RacketCount:
		return ReasonInsufficientRacket
	default:
		return ReasonInsufficientShoes
	}
}

func claimReason(c Claim) string {
	switch {
	case c.Kind == ResourceCourt:
		return ReasonCourtUnavailable
	case c.Kind == ResourceCoach:
		return ReasonCoachUnavailable
	case c.ID == models.EquipmentRacket:
		return ReasonInsufficientRacket
	default:
		return ReasonInsufficientShoes
	}
}

func lockWithMetrics(ctx context.Context, locker domain.Locker, keys ...string) (func(), error) {
	started := time.Now()
	unlock, err := locker.Lock(ctx, keys...)
	result := "acquired"
	if err != nil {
		result = "failed"
	}
	metrics.ObserveLockWait(result, time.Since(started))
	return unlock, err
}
