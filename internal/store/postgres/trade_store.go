package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// TradeStore implements domain.TradeLedger using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, symbol, direction, entry_price, stop_price,
	position_size, risk_amount, has_working_stop, current_price, support,
	asset_type, market, status, synced_from_broker, last_synced_at,
	trade_date, setup, target, contracts, created_at, updated_at`

func scanTradeRows(rows pgx.Rows) ([]domain.PersistedTrade, error) {
	var trades []domain.PersistedTrade
	for rows.Next() {
		var t domain.PersistedTrade
		var direction, support, status string
		var lastSynced *time.Time
		var target decimal.NullDecimal
		var contracts []byte

		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Symbol, &direction, &t.EntryPrice, &t.StopPrice,
			&t.PositionSize, &t.RiskAmount, &t.HasWorkingStop, &t.CurrentPrice, &support,
			&t.AssetType, &t.Market, &status, &t.SyncedFromBroker, &lastSynced,
			&t.Date, &t.Setup, &target, &contracts, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}

		t.Direction = domain.Direction(direction)
		t.Support = domain.InstrumentSupport(support)
		t.Status = domain.TradeStatus(status)
		if lastSynced != nil {
			t.LastSyncedAt = *lastSynced
		}
		if target.Valid {
			v := target.Decimal
			t.Target = &v
		}
		if len(contracts) > 0 {
			if err := json.Unmarshal(contracts, &t.Contracts); err != nil {
				return nil, fmt.Errorf("unmarshal contracts: %w", err)
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListSynced returns the user's ACTIVE rows owned by broker synchronization.
func (s *TradeStore) ListSynced(ctx context.Context, userID string) ([]domain.PersistedTrade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE user_id = $1 AND synced_from_broker AND status = 'ACTIVE'
		ORDER BY symbol, direction`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list synced trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan synced trades: %w", err)
	}
	return trades, nil
}

const (
	insertTradeSQL = `
		INSERT INTO trades (
			id, user_id, symbol, direction, entry_price, stop_price,
			position_size, risk_amount, has_working_stop, current_price, support,
			asset_type, market, status, synced_from_broker, last_synced_at,
			trade_date, setup, target, contracts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)`

	updateTradeSQL = `
		UPDATE trades SET
			entry_price = $3, stop_price = $4, position_size = $5, risk_amount = $6,
			has_working_stop = $7, current_price = $8, support = $9, asset_type = $10,
			market = $11, last_synced_at = $12, updated_at = $13
		WHERE id = $1 AND user_id = $2 AND synced_from_broker AND status = 'ACTIVE'`

	deleteTradeSQL = `
		DELETE FROM trades
		WHERE id = $1 AND user_id = $2 AND synced_from_broker`
)

// ApplyBatch applies every create, update and delete of batch inside one
// transaction. An update or delete that matches no row aborts the batch.
func (s *TradeStore) ApplyBatch(ctx context.Context, userID string, batch domain.LedgerBatch) error {
	if batch.Empty() {
		return nil
	}

	pb := &pgx.Batch{}
	for _, t := range batch.Creates {
		contracts, err := json.Marshal(nonNilStrings(t.Contracts))
		if err != nil {
			return fmt.Errorf("postgres: marshal contracts: %w", err)
		}
		pb.Queue(insertTradeSQL,
			t.ID, userID, t.Symbol, string(t.Direction), t.EntryPrice, t.StopPrice,
			t.PositionSize, t.RiskAmount, t.HasWorkingStop, t.CurrentPrice, string(t.Support),
			t.AssetType, t.Market, string(t.Status), t.SyncedFromBroker, t.LastSyncedAt,
			t.Date, t.Setup, nullDecimal(t.Target), contracts, t.CreatedAt, t.UpdatedAt,
		)
	}
	for _, t := range batch.Updates {
		pb.Queue(updateTradeSQL,
			t.ID, userID, t.EntryPrice, t.StopPrice, t.PositionSize, t.RiskAmount,
			t.HasWorkingStop, t.CurrentPrice, string(t.Support), t.AssetType,
			t.Market, t.LastSyncedAt, t.UpdatedAt,
		)
	}
	for _, id := range batch.Deletes {
		pb.Queue(deleteTradeSQL, id, userID)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, pb)
		defer br.Close()

		for i, t := range batch.Creates {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("create %d (%s): %w", i, t.Key(), err)
			}
		}
		for i, t := range batch.Updates {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("update %d (%s): %w", i, t.Key(), err)
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("update %d (%s): %w", i, t.Key(), domain.ErrNotFound)
			}
		}
		for i, id := range batch.Deletes {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("delete %d (%s): %w", i, id, err)
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("delete %d (%s): %w", i, id, domain.ErrNotFound)
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: apply ledger batch: %w", err)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
