package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// LedgerReconciler diffs a snapshot set against the persisted synced rows
// and writes the difference as one atomic batch.
type LedgerReconciler struct {
	ledger       domain.TradeLedger
	storeTimeout time.Duration
	newID        func() string
	logger       *slog.Logger
}

// NewLedgerReconciler creates a LedgerReconciler.
func NewLedgerReconciler(ledger domain.TradeLedger, storeTimeout time.Duration, logger *slog.Logger) *LedgerReconciler {
	return &LedgerReconciler{
		ledger:       ledger,
		storeTimeout: storeTimeout,
		newID:        uuid.NewString,
		logger:       logger.With(slog.String("component", "ledger_reconciler")),
	}
}

// Reconcile replaces the user's synced ACTIVE rows with snaps, keyed by
// (symbol, direction). snaps must be the complete current position set: any
// persisted key missing from it is deleted. Every failure wraps
// domain.ErrReconcileWrite and leaves the ledger untouched.
func (r *LedgerReconciler) Reconcile(ctx context.Context, userID string, snaps []domain.RiskSnapshot, at time.Time) (domain.LedgerChanges, error) {
	lctx, cancel := withTimeout(ctx, r.storeTimeout)
	existing, err := r.ledger.ListSynced(lctx, userID)
	cancel()
	if err != nil {
		return domain.LedgerChanges{}, fmt.Errorf("ledger_reconciler: list synced trades: %w: %w", domain.ErrReconcileWrite, err)
	}

	batch := r.plan(userID, existing, snaps, at)
	changes := domain.LedgerChanges{
		Created: len(batch.Creates),
		Updated: len(batch.Updates),
		Deleted: len(batch.Deletes),
	}
	if batch.Empty() {
		return changes, nil
	}

	wctx, cancel := withTimeout(ctx, r.storeTimeout)
	defer cancel()
	if err := r.ledger.ApplyBatch(wctx, userID, batch); err != nil {
		return domain.LedgerChanges{}, fmt.Errorf("ledger_reconciler: apply batch: %w: %w", domain.ErrReconcileWrite, err)
	}

	r.logger.InfoContext(ctx, "ledger_reconciler: batch applied",
		slog.String("user_id", userID),
		slog.Int("created", changes.Created),
		slog.Int("updated", changes.Updated),
		slog.Int("deleted", changes.Deleted),
	)
	return changes, nil
}

// plan computes the full-replace batch. Each snapshot key yields exactly one
// create or one update; each persisted key absent from snaps yields one
// delete. Extra persisted rows sharing a key are deleted as well.
func (r *LedgerReconciler) plan(userID string, existing []domain.PersistedTrade, snaps []domain.RiskSnapshot, at time.Time) domain.LedgerBatch {
	current := make(map[domain.TradeKey]domain.PersistedTrade, len(existing))
	var batch domain.LedgerBatch
	for _, t := range existing {
		if _, dup := current[t.Key()]; dup {
			batch.Deletes = append(batch.Deletes, t.ID)
			continue
		}
		current[t.Key()] = t
	}

	wanted := make(map[domain.TradeKey]bool, len(snaps))
	for _, s := range snaps {
		wanted[s.Key()] = true
		if prev, ok := current[s.Key()]; ok {
			batch.Updates = append(batch.Updates, applySnapshot(prev, s, at))
			continue
		}
		batch.Creates = append(batch.Creates, r.newTrade(userID, s, at))
	}

	for _, t := range existing {
		if !wanted[t.Key()] && current[t.Key()].ID == t.ID {
			batch.Deletes = append(batch.Deletes, t.ID)
		}
	}
	return batch
}

func (r *LedgerReconciler) newTrade(userID string, s domain.RiskSnapshot, at time.Time) domain.PersistedTrade {
	t := domain.PersistedTrade{
		ID:               r.newID(),
		UserID:           userID,
		Symbol:           s.Symbol,
		Direction:        s.Direction,
		Status:           domain.TradeStatusActive,
		SyncedFromBroker: true,
		Date:             at.UTC().Format(time.DateOnly),
		Setup:            domain.DefaultSyncedSetup,
		Contracts:        []string{},
		CreatedAt:        at,
	}
	return applySnapshot(t, s, at)
}

// applySnapshot overwrites the broker-derived fields of t. Identity and
// journal metadata (id, date, setup, target, contracts, created_at) are
// kept.
func applySnapshot(t domain.PersistedTrade, s domain.RiskSnapshot, at time.Time) domain.PersistedTrade {
	t.EntryPrice = s.EntryPrice
	t.StopPrice = s.EffectiveStop
	t.PositionSize = s.PositionSize
	t.RiskAmount = s.RiskAmount
	t.HasWorkingStop = s.HasWorkingStop
	t.CurrentPrice = s.CurrentPrice
	t.Support = s.Support
	t.AssetType = s.AssetType
	t.Market = s.Market
	t.LastSyncedAt = at
	t.UpdatedAt = at
	return t
}
