package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// GetSettings returns the user's settings. A user without a settings row gets
// an empty document.
func (s *SettingsStore) GetSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	out := domain.UserSettings{
		UserID:           userID,
		PortfolioCapital: map[string]domain.PortfolioPreference{},
	}

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT portfolio_capital, updated_at FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&raw, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, nil
		}
		return domain.UserSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.PortfolioCapital); err != nil {
			return domain.UserSettings{}, fmt.Errorf("postgres: unmarshal portfolio capital: %w", err)
		}
	}
	return out, nil
}

// MergePortfolioPreference replaces the entry for pref.Market with a JSONB
// merge; entries for other markets are left untouched.
func (s *SettingsStore) MergePortfolioPreference(ctx context.Context, userID string, pref domain.PortfolioPreference) error {
	entry, err := json.Marshal(map[string]domain.PortfolioPreference{pref.Market: pref})
	if err != nil {
		return fmt.Errorf("postgres: marshal portfolio preference: %w", err)
	}

	const query = `
		INSERT INTO user_settings (user_id, portfolio_capital, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			portfolio_capital = user_settings.portfolio_capital || EXCLUDED.portfolio_capital,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, userID, entry); err != nil {
		return fmt.Errorf("postgres: merge portfolio preference: %w", err)
	}
	return nil
}
