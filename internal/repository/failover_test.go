package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"courtbook/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func TestFailoverLocker(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	noop := func() {}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary, fallback := new(mockLocker), new(mockLocker)
		l := NewFailoverLocker(primary, fallback, &logger)
		primary.On("Lock", ctx, []string{"court:1"}).Return(noop, nil).Once()

		unlock, err := l.Lock(ctx, "court:1")
		assert.NoError(t, err)
		assert.NotNil(t, unlock)
		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
	})

	t.Run("BusyIsNotAFailure", func(t *testing.T) {
		primary, fallback := new(mockLocker), new(mockLocker)
		l := NewFailoverLocker(primary, fallback, &logger)
		primary.On("Lock", ctx, []string{"court:1"}).Return(nil, domain.ErrResourceBusy).Once()

		_, err := l.Lock(ctx, "court:1")
		assert.ErrorIs(t, err, domain.ErrResourceBusy)
		assert.False(t, l.isDown.Load())
		fallback.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
	})

	t.Run("FallbackAndRecovery", func(t *testing.T) {
		primary, fallback := new(mockLocker), new(mockLocker)
		l := NewFailoverLocker(primary, fallback, &logger)
		l.recoverAfter = 20 * time.Millisecond

		primary.On("Lock", ctx, []string{"court:1"}).Return(nil, errors.New("connection refused")).Once()
		fallback.On("Lock", ctx, []string{"court:1"}).Return(noop, nil).Twice()

		_, err := l.Lock(ctx, "court:1")
		assert.NoError(t, err)
		assert.True(t, l.isDown.Load())

		// still inside the recovery window: primary is skipped
		_, err = l.Lock(ctx, "court:1")
		assert.NoError(t, err)

		time.Sleep(30 * time.Millisecond)
		primary.On("Lock", ctx, []string{"court:1"}).Return(noop, nil).Once()
		_, err = l.Lock(ctx, "court:1")
		assert.NoError(t, err)
		assert.False(t, l.isDown.Load())

		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
