package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/Zijian-Wang/tradesync/internal/store/memory"
)

var testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// fakeBroker serves canned account and per-status order responses.
type fakeBroker struct {
	mu sync.Mutex

	account    domain.AccountSnapshot
	accountErr error

	orders    map[domain.OrderStatus][]domain.RawOrder
	orderErrs map[domain.OrderStatus]error
	delays    map[domain.OrderStatus]time.Duration

	accountCalls int
	orderQueries []domain.OrderQuery
	tokens       []string
}

func (b *fakeBroker) GetAccount(_ context.Context, accessToken, _ string) (domain.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accountCalls++
	b.tokens = append(b.tokens, accessToken)
	return b.account, b.accountErr
}

func (b *fakeBroker) GetOrders(ctx context.Context, _, _ string, q domain.OrderQuery) ([]domain.RawOrder, error) {
	b.mu.Lock()
	delay := b.delays[q.Status]
	b.orderQueries = append(b.orderQueries, q)
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.orderErrs[q.Status]; err != nil {
		return nil, err
	}
	return b.orders[q.Status], nil
}

func (b *fakeBroker) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accountCalls
}

// fakeRefresher returns a fixed grant or error.
type fakeRefresher struct {
	mu    sync.Mutex
	grant domain.TokenGrant
	err   error
	calls int
}

func (r *fakeRefresher) RefreshToken(_ context.Context, _ string) (domain.TokenGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.grant, r.err
}

type notification struct {
	event, title, message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{event, title, message})
	return nil
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.event)
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

type recordingArchiver struct {
	reports []domain.SyncResult
}

func (a *recordingArchiver) Archive(_ context.Context, res domain.SyncResult) (string, error) {
	a.reports = append(a.reports, res)
	return "sync-reports/" + res.UserID + "/" + res.RunID + ".json", nil
}

type recordingRecorder struct {
	outcomes []string
	changes  []domain.LedgerChanges
}

func (r *recordingRecorder) RunFinished(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingRecorder) LedgerCommitted(c domain.LedgerChanges, _ time.Time) {
	r.changes = append(r.changes, c)
}

// linkedCredential is a credential with a valid access token at testNow.
func linkedCredential(userID string) domain.BrokerCredential {
	return domain.BrokerCredential{
		UserID:        userID,
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		ExpiresAt:     testNow.Add(25 * time.Minute),
		LinkedAt:      testNow.Add(-2 * 24 * time.Hour),
		AccountHash:   "HASH0123456789",
		AccountNumber: "12345678",
	}
}

func seedCredential(t *testing.T, st *memory.Store, cred domain.BrokerCredential) {
	t.Helper()
	require.NoError(t, st.UpsertCredential(context.Background(), cred))
}

func position(symbol, asset string, long, short, avg, mv string) domain.RawPosition {
	return domain.RawPosition{
		Symbol:        symbol,
		AssetType:     asset,
		LongQuantity:  dec(long),
		ShortQuantity: dec(short),
		AveragePrice:  dec(avg),
		MarketValue:   dec(mv),
	}
}

func stopOrder(id, symbol string, ins domain.Instruction, stop string, status domain.OrderStatus) domain.RawOrder {
	o := domain.RawOrder{
		OrderID:     id,
		Type:        domain.OrderTypeStop,
		Status:      status,
		Instruction: ins,
		Symbol:      symbol,
	}
	if stop != "" {
		o.StopPrice = decPtr(stop)
	}
	return o
}
