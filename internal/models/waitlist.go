package models

import "time"

type WaitlistEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourtID     string     `json:"court_id"`
	Window      TimeWindow `json:"window"`
	CoachID     *string    `json:"coach_id"`
	RacketCount int        `json:"racket_count"`
	ShoesCount  int        `json:"shoes_count"`
	Status      string     `json:"status"` // waiting, notified, expired
	Position    *int       `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	BookingID   *string    `json:"booking_id,omitempty"`
}

// Active reports whether the entry still holds a queue position.
func (e *WaitlistEntry) Active() bool {
	return e.Position != nil
}

func (e *WaitlistEntry) Bucket() Bucket {
	return Bucket{CourtID: e.CourtID, Window: e.Window}
}

func (e *WaitlistEntry) Request() BookingRequest {
	return BookingRequest{
		UserID:      e.UserID,
		CourtID:     e.CourtID,
		CoachID:     e.CoachID,
		Window:      e.Window,
		RacketCount: e.RacketCount,
		ShoesCount:  e.ShoesCount,
	}
}

// Bucket is one waitlist queue: a court and an exact time window.
type Bucket struct {
	CourtID string
	Window  TimeWindow
}

func (b Bucket) Key() string {
	return b.CourtID + "|" + FormatTimestamp(b.Window.Start) + "|" + FormatTimestamp(b.Window.End)
}

type WaitlistPosition struct {
	InWaitlist   bool `json:"in_waitlist"`
	Position     *int `json:"position"`
	TotalWaiting int  `json:"total_waiting"`
}

// NotificationTask is a persisted decision to notify a user, drained by the worker.
type NotificationTask struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	UserID      string     `json:"user_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
