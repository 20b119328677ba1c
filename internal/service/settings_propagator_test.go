package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/Zijian-Wang/tradesync/internal/store/memory"
)

func TestApplyAccountValueOverwritesBrokerMarket(t *testing.T) {
	st := memory.New()
	seedCredential(t, st, linkedCredential("u1"))
	st.SetPreference("u1", domain.PortfolioPreference{Market: "US", Capital: dec("50000")})
	st.SetPreference("u1", domain.PortfolioPreference{Market: "HK", Capital: dec("200000")})

	p := NewSettingsPropagator(st, st, "US", time.Second, discardLogger())
	bal := domain.AccountBalances{
		LiquidationValue: dec("104500.25"),
		Equity:           dec("100000"),
		CashBalance:      dec("2500"),
	}
	require.NoError(t, p.ApplyAccountValue(context.Background(), "u1", bal, testNow))

	settings, err := st.GetSettings(context.Background(), "u1")
	require.NoError(t, err)
	us := settings.PortfolioCapital["US"]
	assert.True(t, us.Capital.Equal(dec("104500.25")), "manual value replaced")
	assert.True(t, us.Linked)
	require.NotNil(t, us.LastSyncedAt)
	assert.Equal(t, testNow, *us.LastSyncedAt)
	assert.True(t, settings.PortfolioCapital["HK"].Capital.Equal(dec("200000")), "other markets untouched")

	cred, err := st.GetCredential(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, cred.Equity.Valid)
	assert.True(t, cred.Equity.Decimal.Equal(dec("100000")))
	require.True(t, cred.CashBalance.Valid)
	assert.True(t, cred.CashBalance.Decimal.Equal(dec("2500")))
}

func TestApplyAccountValueReportsBothFailures(t *testing.T) {
	st := memory.New()
	// No credential seeded: the account cache merge fails too.
	st.FailNextSettings(errors.New("quota exceeded"))

	p := NewSettingsPropagator(st, st, "US", time.Second, discardLogger())
	err := p.ApplyAccountValue(context.Background(), "u1", domain.AccountBalances{}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSettingsWrite)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "quota exceeded")
}
