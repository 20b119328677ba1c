package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioPreference is the sizing calculator's capital figure for one
// market.
type PortfolioPreference struct {
	Market       string          `json:"market"`
	Capital      decimal.Decimal `json:"capital"`
	Linked       bool            `json:"linked"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
}

// UserSettings is the per-user settings document.
type UserSettings struct {
	UserID           string                         `json:"user_id"`
	PortfolioCapital map[string]PortfolioPreference `json:"portfolio_capital"`
	UpdatedAt        time.Time                      `json:"updated_at"`
}
