package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

func syncedTrade(id, symbol string, dir domain.Direction) domain.PersistedTrade {
	return domain.PersistedTrade{
		ID:               id,
		UserID:           "u1",
		Symbol:           symbol,
		Direction:        dir,
		EntryPrice:       decimal.NewFromInt(100),
		StopPrice:        decimal.NewFromInt(95),
		PositionSize:     decimal.NewFromInt(10),
		RiskAmount:       decimal.NewFromInt(50),
		Support:          domain.InstrumentSupported,
		Market:           "US",
		Status:           domain.TradeStatusActive,
		SyncedFromBroker: true,
		Contracts:        []string{},
	}
}

func TestApplyBatchCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutTrade(syncedTrade("a", "AAPL", domain.DirectionLong))
	s.PutTrade(syncedTrade("m", "MSFT", domain.DirectionLong))

	upd := syncedTrade("a", "AAPL", domain.DirectionLong)
	upd.EntryPrice = decimal.NewFromInt(101)
	upd.Setup = "should not overwrite"

	err := s.ApplyBatch(ctx, "u1", domain.LedgerBatch{
		Creates: []domain.PersistedTrade{syncedTrade("t", "TSLA", domain.DirectionShort)},
		Updates: []domain.PersistedTrade{upd},
		Deletes: []string{"m"},
	})
	require.NoError(t, err)

	rows, err := s.ListSynced(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.True(t, rows[0].EntryPrice.Equal(decimal.NewFromInt(101)))
	assert.Empty(t, rows[0].Setup)
	assert.Equal(t, "TSLA", rows[1].Symbol)
}

func TestApplyBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutTrade(syncedTrade("a", "AAPL", domain.DirectionLong))
	before := s.AllTrades("u1")

	err := s.ApplyBatch(ctx, "u1", domain.LedgerBatch{
		Creates: []domain.PersistedTrade{syncedTrade("t", "TSLA", domain.DirectionShort)},
		Deletes: []string{"a", "missing"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, s.AllTrades("u1"))
}

func TestApplyBatchRejectsDuplicateActiveKey(t *testing.T) {
	s := New()
	s.PutTrade(syncedTrade("a", "AAPL", domain.DirectionLong))

	err := s.ApplyBatch(context.Background(), "u1", domain.LedgerBatch{
		Creates: []domain.PersistedTrade{syncedTrade("b", "AAPL", domain.DirectionLong)},
	})
	assert.Error(t, err)
	assert.Len(t, s.AllTrades("u1"), 1)
}

func TestFailNextBatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.FailNextBatch(boom)

	batch := domain.LedgerBatch{Creates: []domain.PersistedTrade{syncedTrade("t", "TSLA", domain.DirectionShort)}}
	assert.ErrorIs(t, s.ApplyBatch(ctx, "u1", batch), boom)
	assert.Empty(t, s.AllTrades("u1"))

	require.NoError(t, s.ApplyBatch(ctx, "u1", batch), "failure is one-shot")
	assert.Len(t, s.AllTrades("u1"), 1)
}

func TestListSyncedIgnoresManualRows(t *testing.T) {
	s := New()
	manual := syncedTrade("j", "NVDA", domain.DirectionLong)
	manual.SyncedFromBroker = false
	s.PutTrade(manual)
	s.PutTrade(syncedTrade("a", "AAPL", domain.DirectionLong))

	rows, err := s.ListSynced(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s := New()
	tr := syncedTrade("a", "AAPL", domain.DirectionLong)
	tr.Contracts = []string{"c1"}
	s.PutTrade(tr)

	rows, err := s.ListSynced(context.Background(), "u1")
	require.NoError(t, err)
	rows[0].Contracts[0] = "mutated"

	assert.Equal(t, []string{"c1"}, s.AllTrades("u1")[0].Contracts)
}

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetCredential(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.UpdateToken(ctx, "u1", domain.TokenUpdate{}), domain.ErrNotFound)

	linked := time.Now().Add(-time.Hour)
	require.NoError(t, s.UpsertCredential(ctx, domain.BrokerCredential{
		UserID: "u1", AccessToken: "at", RefreshToken: "rt", AccountHash: "h", LinkedAt: linked,
	}))

	exp := time.Now().Add(30 * time.Minute)
	require.NoError(t, s.UpdateToken(ctx, "u1", domain.TokenUpdate{AccessToken: "at2", ExpiresAt: exp}))
	require.NoError(t, s.MergeAccountCache(ctx, "u1", domain.AccountCache{
		AccountValue: decimal.RequireFromString("1000.10"),
		Equity:       decimal.NewFromInt(900),
		CashBalance:  decimal.NewFromInt(100),
		SyncedAt:     exp,
	}))

	c, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "at2", c.AccessToken)
	assert.Equal(t, "rt", c.RefreshToken, "empty refresh token keeps the stored one")
	require.True(t, c.AccountValue.Valid)
	assert.Equal(t, "1000.1", c.AccountValue.Decimal.String())
	assert.True(t, c.Linked())
}

func TestMergePortfolioPreferenceLeavesOtherMarkets(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetPreference("u1", domain.PortfolioPreference{Market: "CA", Capital: decimal.NewFromInt(5000)})
	s.SetPreference("u1", domain.PortfolioPreference{Market: "US", Capital: decimal.NewFromInt(1)})

	require.NoError(t, s.MergePortfolioPreference(ctx, "u1", domain.PortfolioPreference{
		Market: "US", Capital: decimal.NewFromInt(104500), Linked: true,
	}))

	st, err := s.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.PortfolioCapital["US"].Capital.Equal(decimal.NewFromInt(104500)))
	assert.True(t, st.PortfolioCapital["US"].Linked)
	assert.True(t, st.PortfolioCapital["CA"].Capital.Equal(decimal.NewFromInt(5000)))
}

func TestAuditListByUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Log(ctx, "u1", "sync_completed", map[string]any{"created": 1}))
	require.NoError(t, s.Log(ctx, "u2", "sync_failed", nil))
	require.NoError(t, s.Log(ctx, "u1", "sync_failed", nil))

	entries, err := s.ListByUser(ctx, "u1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sync_failed", entries[0].Event, "newest first")

	entries, err = s.ListByUser(ctx, "u1", domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sync_completed", entries[0].Event)
}
