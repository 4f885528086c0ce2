package repository

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLocker(t *testing.T, timeout time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := NewRedisClient(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, timeout, 10*time.Second), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 30*time.Millisecond)

		unlock, err := l.Lock(ctx, "court:1", "equipment:shoes")
		require.NoError(t, err)
		assert.True(t, mr.Exists(lockKeyPrefix+"court:1"))
		assert.True(t, mr.Exists(lockKeyPrefix+"equipment:shoes"))

		_, err = l.Lock(ctx, "equipment:shoes")
		assert.ErrorIs(t, err, domain.ErrResourceBusy)

		unlock()
		assert.False(t, mr.Exists(lockKeyPrefix+"court:1"))
		assert.False(t, mr.Exists(lockKeyPrefix+"equipment:shoes"))
	})

	t.Run("PartialFailureReleasesHeldKeys", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 30*time.Millisecond)
		require.NoError(t, mr.Set(lockKeyPrefix+"court:9", "someone-else"))

		_, err := l.Lock(ctx, "coach:1", "court:9")
		assert.ErrorIs(t, err, domain.ErrResourceBusy)
		assert.False(t, mr.Exists(lockKeyPrefix+"coach:1"))
	})

	t.Run("DoesNotDeleteForeignToken", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 30*time.Millisecond)
		unlock, err := l.Lock(ctx, "court:1")
		require.NoError(t, err)

		// lock expired and was taken over by another holder
		mr.FastForward(11 * time.Second)
		require.NoError(t, mr.Set(lockKeyPrefix+"court:1", "other-holder"))

		unlock()
		got, err := mr.Get(lockKeyPrefix + "court:1")
		require.NoError(t, err)
		assert.Equal(t, "other-holder", got)
	})

	t.Run("WaitsForRelease", func(t *testing.T) {
		l, _ := setupRedisLocker(t, time.Second)
		unlock, err := l.Lock(ctx, "court:1")
		require.NoError(t, err)

		go func() {
			time.Sleep(30 * time.Millisecond)
			unlock()
		}()

		second, err := l.Lock(ctx, "court:1")
		require.NoError(t, err)
		second()
	})

	t.Run("BackendDown", func(t *testing.T) {
		l, mr := setupRedisLocker(t, 30*time.Millisecond)
		mr.Close()

		_, err := l.Lock(ctx, "court:1")
		require.Error(t, err)
		assert.True(t, isBackendError(err))
	})
}
