package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// Redis sorted set. The trim, count and insert run as one Lua script, so
// concurrent API replicas share a single budget per key.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	now           func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		now:           time.Now,
	}
}

func rateLimitKey(key string) string {
	return keyPrefix + "ratelimit:" + key
}

// Allow counts a request for key if the window still has room.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateDecision, error) {
	if limit <= 0 {
		return domain.RateDecision{Allowed: true}, nil
	}

	res, err := rl.slidingWindow.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return decide(res, limit)
}

// decide maps the script's {allowed, count} reply onto a RateDecision.
func decide(res []int64, limit int) (domain.RateDecision, error) {
	if len(res) != 2 {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit: unexpected reply length %d", len(res))
	}
	return domain.RateDecision{
		Allowed:   res[0] == 1,
		Remaining: max(limit-int(res[1]), 0),
	}, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
