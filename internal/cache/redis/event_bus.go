package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// streamMaxLen is the approximate maximum length for event streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventPublisher. Each event goes out on a Pub/Sub
// channel for live listeners and is appended to a capped stream of the same
// name for consumers that were offline.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

func streamKey(channel string) string {
	return keyPrefix + "stream:" + channel
}

// Publish sends payload on channel and appends it to the channel's stream.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	pipe := b.rdb.TxPipeline()
	pipe.Publish(ctx, channel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventBus)(nil)
