package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the ledger status of a trade row.
type TradeStatus string

const (
	TradeStatusActive TradeStatus = "ACTIVE"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// DefaultSyncedSetup labels journal rows created by synchronization.
const DefaultSyncedSetup = "Broker Sync"

// PersistedTrade is one ledger row. Rows with SyncedFromBroker set have a
// lifecycle owned entirely by synchronization runs.
type PersistedTrade struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Symbol           string            `json:"symbol"`
	Direction        Direction         `json:"direction"`
	EntryPrice       decimal.Decimal   `json:"entry_price"`
	StopPrice        decimal.Decimal   `json:"stop_price"`
	PositionSize     decimal.Decimal   `json:"position_size"`
	RiskAmount       decimal.Decimal   `json:"risk_amount"`
	HasWorkingStop   bool              `json:"has_working_stop"`
	CurrentPrice     decimal.Decimal   `json:"current_price"`
	Support          InstrumentSupport `json:"support"`
	AssetType        string            `json:"asset_type"`
	Market           string            `json:"market"`
	Status           TradeStatus       `json:"status"`
	SyncedFromBroker bool              `json:"synced_from_broker"`
	LastSyncedAt     time.Time         `json:"last_synced_at"`

	// Journal metadata.
	Date      string           `json:"date"`
	Setup     string           `json:"setup"`
	Target    *decimal.Decimal `json:"target,omitempty"`
	Contracts []string         `json:"contracts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the ledger key of the row.
func (t PersistedTrade) Key() TradeKey {
	return TradeKey{Symbol: t.Symbol, Direction: t.Direction}
}

// LedgerBatch is the full set of writes produced by one reconciliation. It
// is applied all-or-nothing.
type LedgerBatch struct {
	Creates []PersistedTrade
	Updates []PersistedTrade
	Deletes []string // trade IDs
}

// Empty reports whether the batch carries no operations.
func (b LedgerBatch) Empty() bool {
	return len(b.Creates) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// LedgerChanges counts the operations of an applied batch.
type LedgerChanges struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}
