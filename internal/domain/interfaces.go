package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

// Reader is the read side of the store. Both the pool and a transaction satisfy it.
type Reader interface {
	GetCourt(ctx context.Context, id string) (*models.Court, error)
	GetCoach(ctx context.Context, id string) (*models.Coach, error)
	GetEquipment(ctx context.Context, equipmentType string) (*models.Equipment, error)
	ListCourts(ctx context.Context) ([]*models.Court, error)
	ListEquipment(ctx context.Context) ([]*models.Equipment, error)
	ListActivePricingRules(ctx context.Context) ([]*models.PricingRule, error)
	IsHoliday(ctx context.Context, date time.Time) (bool, error)

	CourtHasOverlap(ctx context.Context, courtID string, window models.TimeWindow) (bool, error)
	CoachHasOverlap(ctx context.Context, coachID string, window models.TimeWindow) (bool, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)

	GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error)
	ListWaitlistBucket(ctx context.Context, bucket models.Bucket) ([]*models.WaitlistEntry, error)
	FindActiveWaitlistEntry(ctx context.Context, userID string, bucket models.Bucket) (*models.WaitlistEntry, error)
	ListUserWaitlist(ctx context.Context, userID string) ([]*models.WaitlistEntry, error)
	ListAllWaitlist(ctx context.Context) ([]*models.WaitlistEntry, error)
	ListStaleWaitlist(ctx context.Context, now time.Time) ([]*models.WaitlistEntry, error)
}

// Writer holds the mutations that only run inside a transaction.
type Writer interface {
	ReserveEquipment(ctx context.Context, equipmentType string, quantity int) (bool, error)
	ReleaseEquipment(ctx context.Context, equipmentType string, quantity int) error
	InsertBooking(ctx context.Context, booking *models.Booking) error
	CancelBooking(ctx context.Context, id string, at time.Time) error

	InsertWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error
	MarkWaitlistNotified(ctx context.Context, id, bookingID string, at time.Time) error
	MarkWaitlistExpired(ctx context.Context, id string) error
	DeleteWaitlistEntry(ctx context.Context, id string) error
	ShiftWaitlistPositions(ctx context.Context, bucket models.Bucket, after int) error

	EnqueueNotification(ctx context.Context, kind, userID string, payload interface{}) error
}

type Tx interface {
	Reader
	Writer
}

// Store runs reads against the pool and writes inside RunInTx.
type Store interface {
	Reader
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Locker serializes check-then-commit per resource key.
type Locker interface {
	// Lock acquires all keys or none. It returns ErrResourceBusy when the
	// keys cannot be taken within the configured timeout.
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a persisted notification decision.
type Notifier interface {
	Notify(ctx context.Context, task *models.NotificationTask) error
}

type OutboxRepository interface {
	GetPendingNotifications(ctx context.Context, limit int) ([]models.NotificationTask, error)
	CompleteNotification(ctx context.Context, id int64) error
	FailNotification(ctx context.Context, id int64, errMsg string, nextRetryAt *time.Time) error
	ListFailedNotifications(ctx context.Context) ([]models.NotificationTask, error)
}
