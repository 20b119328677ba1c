package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BrokerCredential is the single linked brokerage credential stored on a
// user record.
type BrokerCredential struct {
	UserID        string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time // access token expiry
	LinkedAt      time.Time // when the refresh token was issued
	AccountHash   string
	AccountNumber string

	// Cached account figures written by the settings propagator.
	// Invalid until the first committed run.
	AccountValue decimal.NullDecimal
	Equity       decimal.NullDecimal
	CashBalance  decimal.NullDecimal
	LastSyncedAt *time.Time
}

// Linked reports whether the credential can be used to reach the broker.
func (c BrokerCredential) Linked() bool {
	return c.RefreshToken != "" && c.AccountHash != ""
}

// TokenGrant is the result of a token refresh. RefreshToken is empty when the
// token endpoint did not rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenUpdate is the partial credential write performed after a refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string // empty keeps the stored refresh token
	ExpiresAt    time.Time
}

// AccountCache is the merge applied to the credential after each run.
type AccountCache struct {
	AccountValue decimal.Decimal
	Equity       decimal.Decimal
	CashBalance  decimal.Decimal
	SyncedAt     time.Time
}
