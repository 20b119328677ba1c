package domain

import (
	"context"
	"time"
)

// OrderQuery selects orders by status within an entered-time window.
type OrderQuery struct {
	Status OrderStatus
	From   time.Time
	To     time.Time
}

// BrokerClient is the narrow contract the engine needs from the brokerage.
type BrokerClient interface {
	GetAccount(ctx context.Context, accessToken, accountHash string) (AccountSnapshot, error)
	GetOrders(ctx context.Context, accessToken, accountHash string, q OrderQuery) ([]RawOrder, error)
}

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error)
}
