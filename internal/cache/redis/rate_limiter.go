package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// RateLimiter implements domain.RateLimiter using a fixed-window counter in
// Redis. The first INCR in a window sets the expiry, so stale keys clean
// themselves up.
type RateLimiter struct {
	client *Client
}

// NewRateLimiter creates a RateLimiter backed by the given Redis client.
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// Allow increments the counter for key and reports whether it is still within
// limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rdb := l.client.Underlying()

	var count *redis.IntCmd
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %q: %w", key, err)
	}

	return count.Val() <= int64(limit), nil
}
