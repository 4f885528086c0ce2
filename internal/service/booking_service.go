package service

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// BookingService is the surface used by transports. It adds ownership checks
// on top of the core components.
type BookingService struct {
	store        domain.Store
	availability *AvailabilityChecker
	pricing      *PricingEngine
	admission    *AdmissionController
	waitlist     *WaitlistManager
	logger       *zerolog.Logger
}

// NewBookingService builds the core components and subscribes the waitlist to
// cancellations.
func NewBookingService(store domain.Store, locker domain.Locker, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	ledger := NewLedger(logger)
	pricing := NewPricingEngine(store, logger)
	admission := NewAdmissionController(store, locker, ledger, pricing, eventBus, logger)
	waitlist := NewWaitlistManager(store, locker, admission, eventBus, logger)
	admission.OnRelease(waitlist.OnRelease)

	return &BookingService{
		store:        store,
		availability: NewAvailabilityChecker(store),
		pricing:      pricing,
		admission:    admission,
		waitlist:     waitlist,
		logger:       logger,
	}
}

func (s *BookingService) Waitlist() *WaitlistManager {
	return s.waitlist
}

func (s *BookingService) CheckAvailability(ctx context.Context, req models.BookingRequest) (models.AvailabilityCheck, error) {
	return s.availability.Check(ctx, req)
}

func (s *BookingService) CalculatePrice(ctx context.Context, req models.BookingRequest) (models.PriceCalculation, error) {
	return s.pricing.Calculate(ctx, req)
}

func (s *BookingService) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	return s.admission.Admit(ctx, req)
}

func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrForbidden)
	}
	return booking, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID string) error {
	if _, err := s.GetBooking(ctx, userID, bookingID); err != nil {
		return err
	}
	return s.admission.Cancel(ctx, bookingID)
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID string, filter models.BookingFilter) ([]*models.Booking, error) {
	filter.UserID = userID
	return s.store.ListBookings(ctx, filter)
}

func (s *BookingService) JoinWaitlist(ctx context.Context, req models.BookingRequest) (*models.WaitlistEntry, error) {
	return s.waitlist.Join(ctx, req)
}

func (s *BookingService) GetWaitlistPosition(ctx context.Context, userID string, bucket models.Bucket) (models.WaitlistPosition, error) {
	return s.waitlist.GetPosition(ctx, userID, bucket)
}

func (s *BookingService) WithdrawWaitlist(ctx context.Context, userID, entryID string) error {
	return s.waitlist.Withdraw(ctx, userID, entryID)
}

func (s *BookingService) ListUserWaitlist(ctx context.Context, userID string) ([]*models.WaitlistEntry, error) {
	return s.waitlist.ListForUser(ctx, userID)
}

// ExpireStaleWaitlist is the entry point for the expiry job.
func (s *BookingService) ExpireStaleWaitlist(ctx context.Context, now time.Time) (int, error) {
	return s.waitlist.ExpireStale(ctx, now)
}

func (s *BookingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
