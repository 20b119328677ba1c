package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// SettingsPropagator writes the broker's account figures back to the user's
// credential cache and portfolio-capital preference.
type SettingsPropagator struct {
	creds        domain.CredentialStore
	settings     domain.SettingsStore
	market       string
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewSettingsPropagator creates a SettingsPropagator for market.
func NewSettingsPropagator(
	creds domain.CredentialStore,
	settings domain.SettingsStore,
	market string,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *SettingsPropagator {
	return &SettingsPropagator{
		creds:        creds,
		settings:     settings,
		market:       market,
		storeTimeout: storeTimeout,
		logger:       logger.With(slog.String("component", "settings_propagator")),
	}
}

// ApplyAccountValue merges the account figures into the credential and
// overwrites the capital preference of the broker's market with the
// liquidation value. The broker is the source of truth for that market, so
// a manually edited value is replaced on every run. Both writes are
// attempted; failures are joined and wrap domain.ErrSettingsWrite.
func (p *SettingsPropagator) ApplyAccountValue(ctx context.Context, userID string, bal domain.AccountBalances, syncedAt time.Time) error {
	var errs []error

	cctx, cancel := withTimeout(ctx, p.storeTimeout)
	err := p.creds.MergeAccountCache(cctx, userID, domain.AccountCache{
		AccountValue: bal.LiquidationValue,
		Equity:       bal.Equity,
		CashBalance:  bal.CashBalance,
		SyncedAt:     syncedAt,
	})
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("account cache: %w", err))
	}

	at := syncedAt
	sctx, cancel := withTimeout(ctx, p.storeTimeout)
	err = p.settings.MergePortfolioPreference(sctx, userID, domain.PortfolioPreference{
		Market:       p.market,
		Capital:      bal.LiquidationValue,
		Linked:       true,
		LastSyncedAt: &at,
	})
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("portfolio preference: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.WarnContext(ctx, "settings_propagator: write failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("settings_propagator: %w: %w", domain.ErrSettingsWrite, err)
	}

	p.logger.DebugContext(ctx, "settings_propagator: account value applied",
		slog.String("user_id", userID),
		slog.String("market", p.market),
		slog.String("capital", bal.LiquidationValue.StringFixed(2)),
	)
	return nil
}
