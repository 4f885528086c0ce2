package api

import (
	"sync"

	"courtbook/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter keeps one token bucket per caller key. HTTP keys on the user
// header or remote host, gRPC on the peer address.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
	}
}

// Allow reports whether key may proceed. A non-positive RPS disables limiting.
func (l *rateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}
