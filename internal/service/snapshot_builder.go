package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// errInvalidQuantity marks a broker position whose resolved quantity is not
// positive.
var errInvalidQuantity = errors.New("non-positive position quantity")

// supportedAssetTypes are the instrument types counted in aggregate risk.
// The broker reports ETFs as COLLECTIVE_INVESTMENT.
var supportedAssetTypes = map[string]bool{
	"EQUITY":                true,
	"ETF":                   true,
	"COLLECTIVE_INVESTMENT": true,
}

var one = decimal.NewFromInt(1)

// SnapshotBuilder converts raw positions and their matched stops into risk
// snapshots.
type SnapshotBuilder struct {
	fallbackPct decimal.Decimal
	market      string
}

// NewSnapshotBuilder creates a SnapshotBuilder. fallbackPct is the distance
// from entry used as the stop when no working stop exists (0.05 places it at
// 95% of entry for longs and 105% for shorts).
func NewSnapshotBuilder(fallbackPct float64, market string) *SnapshotBuilder {
	return &SnapshotBuilder{
		fallbackPct: decimal.NewFromFloat(fallbackPct),
		market:      market,
	}
}

// resolveSide returns the direction of p and its quantity. Long wins when
// the long quantity is positive; otherwise the short quantity is used as is.
func resolveSide(p domain.RawPosition) (domain.Direction, decimal.Decimal) {
	if p.LongQuantity.IsPositive() {
		return domain.DirectionLong, p.LongQuantity
	}
	return domain.DirectionShort, p.ShortQuantity
}

// Build derives the snapshot for p. stop is the matched order, or nil.
//
// RiskAmount is |EntryPrice - EffectiveStop| * PositionSize and is never
// negative. A position with a zero or negative quantity is rejected.
func (b *SnapshotBuilder) Build(p domain.RawPosition, stop *domain.RawOrder) (domain.RiskSnapshot, error) {
	dir, qty := resolveSide(p)
	if !qty.IsPositive() {
		return domain.RiskSnapshot{}, fmt.Errorf("snapshot_builder: %s: %w", p.Symbol, errInvalidQuantity)
	}

	entry := p.AveragePrice
	snap := domain.RiskSnapshot{
		Symbol:       p.Symbol,
		Direction:    dir,
		EntryPrice:   entry,
		PositionSize: qty,
		CurrentPrice: p.MarketValue.Abs().DivRound(qty, 4),
		Support:      domain.InstrumentUnsupported,
		AssetType:    p.AssetType,
		Market:       b.market,
	}
	if supportedAssetTypes[strings.ToUpper(p.AssetType)] {
		snap.Support = domain.InstrumentSupported
	}

	// A matched stop without a stop price (a trailing stop with no explicit
	// trigger) is recorded but still takes the fallback.
	if stop != nil {
		snap.StopOrderID = stop.OrderID
	}
	switch {
	case stop != nil && stop.StopPrice != nil:
		snap.EffectiveStop = *stop.StopPrice
		snap.HasWorkingStop = true
	case dir == domain.DirectionLong:
		snap.EffectiveStop = entry.Mul(one.Sub(b.fallbackPct))
	default:
		snap.EffectiveStop = entry.Mul(one.Add(b.fallbackPct))
	}

	snap.RiskAmount = entry.Sub(snap.EffectiveStop).Abs().Mul(qty)
	return snap, nil
}

// BuildAll matches a stop for every position and builds its snapshot.
// Invalid positions and repeated (symbol, direction) keys are skipped and
// reported as warnings. The total covers supported instruments only.
func (b *SnapshotBuilder) BuildAll(positions []domain.RawPosition, orders []domain.RawOrder) (
	snaps []domain.RiskSnapshot, total decimal.Decimal, warnings []string,
) {
	seen := make(map[domain.TradeKey]bool, len(positions))
	for _, p := range positions {
		var stop *domain.RawOrder
		if o, ok := MatchStop(p, orders); ok {
			stop = &o
		}

		snap, err := b.Build(p, stop)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", p.Symbol, errInvalidQuantity))
			continue
		}
		if seen[snap.Key()] {
			warnings = append(warnings, fmt.Sprintf("skipped duplicate position %s", snap.Key()))
			continue
		}
		seen[snap.Key()] = true

		snaps = append(snaps, snap)
		if snap.Supported() {
			total = total.Add(snap.RiskAmount)
		}
	}
	return snaps, total, warnings
}
