package worker

import (
	"time"

	"courtbook/internal/config"
)

const (
	fallbackBaseDelay = time.Second
	fallbackFactor    = 2.0
)

// RetryPolicy spaces out failed notification attempts. Zero fields fall back
// to a one second base doubling on every attempt.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func RetryPolicyFromConfig(cfg config.WorkerConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.BaseDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// Exhausted reports whether a task that has now failed attempt times must stop.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}

// NextDelay is the wait before retrying after the given 1-based failed attempt.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := r.BaseDelay
	if delay <= 0 {
		delay = fallbackBaseDelay
	}
	factor := r.BackoffFactor
	if factor <= 1 {
		factor = fallbackFactor
	}

	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}
