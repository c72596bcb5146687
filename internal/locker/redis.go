package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTaken       = errors.New("lock is held by another process")
	ErrUnavailable = errors.New("lock backend is unavailable")
)

const (
	keyPrefix     = "sender-lock:"
	defaultExpiry = 30 * time.Second
)

// RedisLocker serializes dispatches of the same sender across every replica sharing the Redis.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *slog.Logger
}

func NewRedisLocker(redisClient *redis.Client, expiry time.Duration) *RedisLocker {
	pool := goredis.NewPool(redisClient)
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	return &RedisLocker{
		rs:     redsync.New(pool),
		expiry: expiry,
		logger: slog.With("component", "sender-lock"),
	}
}

// Acquire takes the lock without waiting and keeps extending it until release is called.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(keyPrefix+key, redsync.WithExpiry(l.expiry), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, fmt.Errorf("%w: %s", ErrTaken, key)
		}
		return nil, fmt.Errorf("%w: failed to acquire redis lock: %w", ErrUnavailable, err)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(l.expiry / 2)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if ok, err := mutex.ExtendContext(context.Background()); !ok || err != nil {
					l.logger.Warn(fmt.Sprintf("failed to extend lock %s: %v", mutex.Name(), err))
				}
			}
		}
	}()

	release := func() {
		close(done)
		<-stopped
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			l.logger.Warn(fmt.Sprintf("failed to release lock %s: %v", mutex.Name(), err))
		}
	}

	return release, nil
}
