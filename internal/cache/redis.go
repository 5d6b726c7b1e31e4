package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tonearm/internal/shared"
)

// Redis is a [Store] backed by a Redis server. Backend failures are wrapped
// in [shared.ErrCacheUnavailable] so callers can distinguish infrastructure
// faults from misses.
type Redis struct {
	client    *redis.Client
	closeOnce sync.Once
}

var _ Store = (*Redis)(nil)

// NewRedis connects to the Redis server at the given URL
// (redis://host:port/db) and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", shared.ErrInvalidConfig, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}

	return &Redis{client: client}, nil
}

// Get retrieves a value. A missing key is not an error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return value, true, nil
}

// Put stores a value with a TTL. A non-positive TTL stores without expiry.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes a key. Removing an absent key is not an error.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return nil
}

// AcquireLease takes an exclusive lease with SET NX.
func (r *Redis) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return acquired, nil
}

// ReleaseLease drops a lease.
func (r *Redis) ReleaseLease(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCacheUnavailable, err)
	}
	return nil
}

// Close shuts down the connection pool. Safe to call multiple times.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.client.Close()
	})
	return err
}
