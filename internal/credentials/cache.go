package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "sender-credentials:"

type cachedCredentials struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

// CachedResolver is a read-through Redis cache in front of another resolver.
// Misses of the backing store are never cached, so a newly added sender resolves at once.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.With("component", "credentials-cache"),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, senderId string) (Credentials, error) {
	key := cacheKeyPrefix + senderId

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedCredentials
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return Credentials{LoginIdentity: cached.Login, Secret: cached.Secret}, nil
		}
		r.logger.Warn(fmt.Sprintf("discarding malformed cache entry for %s", senderId))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn(fmt.Sprintf("cache read failed, falling back to store: %v", err))
	}

	creds, err := r.next.Resolve(ctx, senderId)
	if err != nil {
		return Credentials{}, err
	}

	data, err := json.Marshal(cachedCredentials{Login: creds.LoginIdentity, Secret: creds.Secret})
	if err == nil {
		err = r.client.Set(ctx, key, data, r.ttl).Err()
	}
	if err != nil {
		r.logger.Warn(fmt.Sprintf("cache write failed for %s: %v", senderId, err))
	}

	return creds, nil
}

// Invalidate removes the cached entry for senderId.
func (r *CachedResolver) Invalidate(ctx context.Context, senderId string) error {
	if err := r.client.Del(ctx, cacheKeyPrefix+senderId).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry for %s: %w", senderId, err)
	}
	return nil
}
