package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker uses the primary locker and switches to the fallback while
// the primary is unreachable. It retries the primary after recoverAfter.
type FailoverLocker struct {
	primary      domain.Locker
	fallback     domain.Locker
	logger       *zerolog.Logger
	isDown       atomic.Bool
	mu           sync.Mutex
	lastCheck    time.Time
	recoverAfter time.Duration
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if !l.isDown.Load() || l.shouldProbe() {
		unlock, err := l.primary.Lock(ctx, keys...)
		if !isBackendError(err) {
			if l.isDown.CompareAndSwap(true, false) {
				l.logger.Info().Msg("Primary locker recovered")
			}
			return unlock, err
		}
		if !l.isDown.Swap(true) {
			l.logger.Error().Err(err).Msg("Primary locker failed, falling back to memory")
		}
		l.markChecked()
	}

	return l.fallback.Lock(ctx, keys...)
}

func (l *FailoverLocker) shouldProbe() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) <= l.recoverAfter {
		return false
	}
	l.lastCheck = time.Now()
	return true
}

func (l *FailoverLocker) markChecked() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
}
