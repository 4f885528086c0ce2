package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "courtbook:lock:"

// releaseScript deletes a lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient builds a client from the redis section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisLocker shares resource locks between processes. Each key is a
// SET NX PX entry carrying a random token; ttl bounds a crashed holder.
type RedisLocker struct {
	client     *redis.Client
	timeout    time.Duration
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedisLocker(client *redis.Client, timeout, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:     client,
		timeout:    timeout,
		ttl:        ttl,
		retryDelay: 10 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	keys = normalizeKeys(keys)
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	held := make([]string, 0, len(keys))
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(ctx, l.client, []string{held[i]}, token).Err()
		}
	}

	for _, key := range keys {
		redisKey := lockKeyPrefix + key
		if err := l.acquire(ctx, redisKey, token, deadline); err != nil {
			release()
			return nil, err
		}
		held = append(held, redisKey)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return domain.ErrResourceBusy
		}
		if wait > l.retryDelay {
			wait = l.retryDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// isBackendError reports whether err came from redis itself rather than contention.
func isBackendError(err error) bool {
	return err != nil &&
		!errors.Is(err, domain.ErrResourceBusy) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
