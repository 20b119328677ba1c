package domain

import "github.com/shopspring/decimal"

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ClosingInstruction is the order instruction that reduces a position in
// this direction.
func (d Direction) ClosingInstruction() Instruction {
	if d == DirectionShort {
		return InstructionBuy
	}
	return InstructionSell
}

// InstrumentSupport tags whether a snapshot counts towards aggregate risk.
type InstrumentSupport string

const (
	InstrumentSupported   InstrumentSupport = "SUPPORTED"
	InstrumentUnsupported InstrumentSupport = "UNSUPPORTED"
)

// TradeKey identifies a logical position in a user's ledger.
type TradeKey struct {
	Symbol    string
	Direction Direction
}

func (k TradeKey) String() string {
	return k.Symbol + "-" + string(k.Direction)
}

// RiskSnapshot is the derived risk record for one open position.
// RiskAmount is always |EntryPrice - EffectiveStop| * PositionSize.
type RiskSnapshot struct {
	Symbol         string            `json:"symbol"`
	Direction      Direction         `json:"direction"`
	EntryPrice     decimal.Decimal   `json:"entry_price"`
	EffectiveStop  decimal.Decimal   `json:"effective_stop"`
	PositionSize   decimal.Decimal   `json:"position_size"`
	RiskAmount     decimal.Decimal   `json:"risk_amount"`
	HasWorkingStop bool              `json:"has_working_stop"`
	CurrentPrice   decimal.Decimal   `json:"current_price"`
	Support        InstrumentSupport `json:"support"`
	AssetType      string            `json:"asset_type"`
	Market         string            `json:"market"`
	StopOrderID    string            `json:"stop_order_id,omitempty"`
}

// Key returns the ledger key of the snapshot.
func (s RiskSnapshot) Key() TradeKey {
	return TradeKey{Symbol: s.Symbol, Direction: s.Direction}
}

// Supported reports whether the snapshot counts towards aggregate risk.
func (s RiskSnapshot) Supported() bool {
	return s.Support == InstrumentSupported
}
