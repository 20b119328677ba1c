package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncOutcome summarises a run that committed its ledger.
type SyncOutcome string

const (
	// SyncOutcomeSuccess means every step completed.
	SyncOutcomeSuccess SyncOutcome = "success"
	// SyncOutcomePartial means the ledger committed but the settings write failed.
	SyncOutcomePartial SyncOutcome = "partial"
)

// SyncResult is the payload returned by one synchronization run.
type SyncResult struct {
	RunID         string          `json:"run_id"`
	UserID        string          `json:"user_id"`
	Outcome       SyncOutcome     `json:"outcome"`
	Snapshots     []RiskSnapshot  `json:"snapshots"`
	TotalRisk     decimal.Decimal `json:"total_risk"`
	AccountValue  decimal.Decimal `json:"account_value"`
	Equity        decimal.Decimal `json:"equity"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	SyncedAt      time.Time       `json:"synced_at"`
	Changes       LedgerChanges   `json:"changes"`
	Warnings      []string        `json:"warnings,omitempty"`
	DegradedOrder []OrderStatus   `json:"degraded_order_statuses,omitempty"`
	SettingsError string          `json:"settings_error,omitempty"`
}
