package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusWaitlist  = "waitlist"
)

const (
	WaitlistWaiting  = "waiting"
	WaitlistNotified = "notified"
	WaitlistExpired  = "expired"
)

const (
	CourtIndoor  = "indoor"
	CourtOutdoor = "outdoor"

	ResourceAvailable   = "available"
	ResourceMaintenance = "maintenance"
	ResourceUnavailable = "unavailable"
)

const (
	EquipmentRacket = "racket"
	EquipmentShoes  = "shoes"
)

const (
	RulePeakHour     = "peak_hour"
	RuleWeekend      = "weekend"
	RuleHoliday      = "holiday"
	RulePremiumCourt = "premium_court"

	ModifierMultiplier = "multiplier"
	ModifierSurcharge  = "surcharge"
)

const (
	// TimestampLayout is the local-naive wire and storage format.
	TimestampLayout = "2006-01-02T15:04:05"
	// TimestampLayoutShort is accepted on input only.
	TimestampLayoutShort = "2006-01-02T15:04"
	DateLayout           = "2006-01-02"
	ClockLayout          = "15:04:05"
	ClockLayoutShort     = "15:04"
)

const (
	OutboxPending   = "pending"
	OutboxRetry     = "retry"
	OutboxCompleted = "completed"
	OutboxFailed    = "failed"
)

const (
	// DefaultLockTimeout bounds how long admission waits for a resource lock, in milliseconds.
	DefaultLockTimeout = 2000

	// DefaultLockTTL is how long a distributed lock survives a crashed holder, in milliseconds.
	DefaultLockTTL = 10000

	// WorkerQueueSize buffers wake-ups of the outbox worker.
	WorkerQueueSize = 128

	// DefaultWaitlistExpiryCron runs the waitlist expiry sweep every minute.
	DefaultWaitlistExpiryCron = "* * * * *"
)
