package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "tradesync:lock:sync:u1", lockKey(SyncLockKey("u1")))
	assert.Equal(t, "tradesync:ratelimit:1.2.3.4", rateLimitKey("1.2.3.4"))
	assert.Equal(t, "tradesync:stream:sync", streamKey("sync"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "return {1, count + 1}")
}

func TestAllowWithoutLimitSkipsRedis(t *testing.T) {
	// Points at a closed port; a zero limit must not touch the connection.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	rl := NewRateLimiter(Wrap(rdb))
	d, err := rl.Allow(context.Background(), "k", 0, time.Minute)
	assert.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecideRemaining(t *testing.T) {
	d, err := decide([]int64{1, 3}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.RateDecision{Allowed: true, Remaining: 2}, d)

	d, err = decide([]int64{0, 5}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.RateDecision{Allowed: false, Remaining: 0}, d)

	d, err = decide([]int64{0, 7}, 5)
	require.NoError(t, err)
	assert.Zero(t, d.Remaining, "limit lowered below the stored count")

	_, err = decide([]int64{1}, 5)
	assert.Error(t, err)
}

func TestAcquireSurfacesConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	lm := NewLockManager(Wrap(rdb))
	unlock, err := lm.Acquire(context.Background(), SyncLockKey("u1"), time.Second)
	assert.Error(t, err)
	assert.Nil(t, unlock)
}

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 7, TLSEnabled: true})

	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, "tradesync", opts.ClientName)
	require.NotNil(t, opts.TLSConfig)

	assert.Nil(t, options(ClientConfig{Addr: "cache:6379"}).TLSConfig)
}
