package repository

import (
	"context"
	"sync"
	"time"

	"courtbook/internal/domain"
)

// MemoryLocker holds per-key locks inside one process.
type MemoryLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *MemoryLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range keys {
		ch := l.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, domain.ErrResourceBusy
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
