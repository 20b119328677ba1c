package domain

import (
	"context"
	"time"
)

// RateDecision is the outcome of one rate-limited request.
type RateDecision struct {
	Allowed   bool
	Remaining int // requests left in the current window
}

// RateLimiter provides distributed rate limiting. A non-positive limit
// disables limiting for the call.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventPublisher fans out run events to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
