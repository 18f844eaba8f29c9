// Package cache wraps the Redis client used for sessions, throttling and
// list versions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Counter is a monotonically increasing number stored under one key.
type Counter struct {
	client *redis.Client
	key    string
}

// NewCounter binds a counter to key.
func NewCounter(client *redis.Client, key string) *Counter {
	return &Counter{client: client, key: key}
}

// Current returns the counter value, zero when unset.
func (c *Counter) Current(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("platform/cache: get %s: %w", c.key, err)
	}
	return v, nil
}

// Bump increments the counter and returns the new value.
func (c *Counter) Bump(ctx context.Context) (int64, error) {
	v, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("platform/cache: incr %s: %w", c.key, err)
	}
	return v, nil
}
