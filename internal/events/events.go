package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	EventWaitlistJoined   = "waitlist_joined"
	EventWaitlistLeft     = "waitlist_withdrawn"
	EventWaitlistPromoted = "waitlist_promoted"
	EventWaitlistExpired  = "waitlist_expired"
)

// AllTypes lists every event the core publishes.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingCancelled,
	EventWaitlistJoined,
	EventWaitlistLeft,
	EventWaitlistPromoted,
	EventWaitlistExpired,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	CourtID    string `json:"court_id"`
	CoachID    string `json:"coach_id,omitempty"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	TotalPrice string `json:"total_price"`
	Source     string `json:"source,omitempty"`
}

// WaitlistEventPayload is published on queue transitions. For promotions it
// is also the notification decision: UserID is the party to notify.
type WaitlistEventPayload struct {
	WaitlistID string `json:"waitlist_id"`
	UserID     string `json:"user_id"`
	CourtID    string `json:"court_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	Position   int    `json:"position,omitempty"`
	BookingID  string `json:"booking_id,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger when it is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// LogEvents subscribes a debug logger to every event type.
func LogEvents(b *EventBus, logger *zerolog.Logger) {
	for _, t := range AllTypes {
		b.Subscribe(t, func(event *Event) error {
			logger.Debug().
				Str("event", event.Type).
				RawJSON("payload", event.Payload).
				Msg("Domain event")
			return nil
		})
	}
}
