package schwab

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/v1/oauth/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      2 * time.Second,
	}, nil, opts...)
}

const accountBody = `{
  "securitiesAccount": {
    "type": "MARGIN",
    "accountNumber": "12345678",
    "positions": [
      {"longQuantity": 100, "shortQuantity": 0, "averagePrice": 185.0, "marketValue": 19000.0,
       "instrument": {"symbol": "AAPL", "assetType": "EQUITY"}},
      {"longQuantity": 0, "shortQuantity": 50, "averagePrice": 0, "averageShortPrice": 240.0, "marketValue": -12000.0,
       "instrument": {"symbol": "TSLA", "assetType": "EQUITY"}}
    ],
    "currentBalances": {"liquidationValue": 104500.25, "equity": 100000.5, "availableFunds": 2500}
  }
}`

func TestGetAccount(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, accountBody)
	}))

	snap, err := c.GetAccount(context.Background(), "tok", "HASH1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/trader/v1/accounts/HASH1", gotPath)
	assert.Equal(t, "fields=positions", gotQuery)

	assert.Equal(t, "12345678", snap.AccountNumber)
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "AAPL", snap.Positions[0].Symbol)
	assert.True(t, snap.Positions[0].LongQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, snap.Positions[1].AveragePrice.Equal(decimal.NewFromInt(240)), "falls back to averageShortPrice")

	assert.True(t, snap.Balances.LiquidationValue.Equal(decimal.RequireFromString("104500.25")))
	assert.True(t, snap.Balances.Equity.Equal(decimal.RequireFromString("100000.5")))
	assert.True(t, snap.Balances.CashBalance.Equal(decimal.NewFromInt(2500)), "cash falls back to availableFunds")
}

func TestGetAccountNon2xx(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", 2000))
	}))

	_, err := c.GetAccount(context.Background(), "tok", "HASH1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Equal(t, EndpointAccount, upErr.Endpoint)
	assert.LessOrEqual(t, len(upErr.Body), 512+3)
	assert.NotContains(t, err.Error(), "tok")
}

func TestGetAccountTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)

	_, err := c.GetAccount(context.Background(), "tok", "H")
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)
}

const ordersBody = `[
  {"orderId": 1001, "orderType": "STOP", "status": "WORKING", "stopPrice": 182.0,
   "orderLegCollection": [{"instruction": "SELL", "quantity": 100, "instrument": {"symbol": "AAPL", "assetType": "EQUITY"}}]},
  {"orderId": 1002, "orderType": "TRIGGER", "status": "WORKING",
   "orderLegCollection": [{"instruction": "SELL_SHORT", "quantity": 50, "instrument": {"symbol": "TSLA"}}],
   "childOrderStrategies": [
     {"orderId": 1003, "orderType": "STOP", "status": "AWAITING_STOP_CONDITION", "stopPrice": 252.5,
      "orderLegCollection": [{"instruction": "BUY_TO_COVER", "quantity": 50, "instrument": {"symbol": "TSLA"}}]}
   ]},
  {"orderId": 1004, "orderType": "TRAILING_STOP", "status": "QUEUED",
   "orderLegCollection": [{"instruction": "EXCHANGE", "instrument": {"symbol": "MSFT"}}]}
]`

func TestGetOrders(t *testing.T) {
	var q map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trader/v1/accounts/HASH1/orders", r.URL.Path)
		q = map[string]string{
			"from":   r.URL.Query().Get("fromEnteredTime"),
			"to":     r.URL.Query().Get("toEnteredTime"),
			"status": r.URL.Query().Get("status"),
		}
		_, _ = io.WriteString(w, ordersBody)
	}))

	to := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	from := to.AddDate(0, 0, -60)
	orders, err := c.GetOrders(context.Background(), "tok", "HASH1", domain.OrderQuery{
		Status: domain.OrderStatusWorking, From: from, To: to,
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-01-01T15:04:05.000Z", q["from"])
	assert.Equal(t, "2026-03-02T15:04:05.000Z", q["to"])
	assert.Equal(t, "WORKING", q["status"])

	require.Len(t, orders, 4)
	assert.Equal(t, "1001", orders[0].OrderID)
	assert.Equal(t, domain.InstructionSell, orders[0].Instruction)
	require.NotNil(t, orders[0].StopPrice)
	assert.True(t, orders[0].StopPrice.Equal(decimal.NewFromInt(182)))

	assert.Equal(t, domain.Instruction("SELL_SHORT"), orders[1].Instruction, "opening instruction kept verbatim")
	assert.Nil(t, orders[1].StopPrice)

	assert.Equal(t, "1003", orders[2].OrderID, "child order flattened")
	assert.Equal(t, domain.InstructionBuy, orders[2].Instruction, "BUY_TO_COVER normalised")
	assert.Equal(t, domain.OrderStatusAwaitingStopCondition, orders[2].Status)

	assert.Equal(t, domain.Instruction("EXCHANGE"), orders[3].Instruction)
}

func TestGetOrdersEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	orders, err := c.GetOrders(context.Background(), "tok", "H", domain.OrderQuery{Status: domain.OrderStatusQueued})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRefreshToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/oauth/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		_, _ = io.WriteString(w, `{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":1800}`)
	}))

	grant, err := c.RefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", grant.AccessToken)
	assert.Equal(t, "rt-2", grant.RefreshToken)
	assert.Equal(t, 30*time.Minute, grant.ExpiresIn)
}

func TestRefreshTokenFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"refresh token expired"}`)
	}))

	_, err := c.RefreshToken(context.Background(), "rt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.NotContains(t, err.Error(), "rt-1")
}

func TestRefreshTokenMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token_type":"Bearer"}`)
	}))
	_, err := c.RefreshToken(context.Background(), "rt-1")
	assert.ErrorIs(t, err, domain.ErrRefreshFailed)
}

func TestLatencyObserver(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}), WithLatencyObserver(func(endpoint string, status int, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen[endpoint] = status
	}))

	_, err := c.GetOrders(context.Background(), "tok", "H", domain.OrderQuery{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{EndpointOrders: http.StatusOK}, seen)
}

func TestNormalizeInstruction(t *testing.T) {
	cases := map[string]domain.Instruction{
		"SELL":          domain.InstructionSell,
		"SELL_TO_CLOSE": domain.InstructionSell,
		"SELL_SHORT":    domain.Instruction("SELL_SHORT"),
		"BUY":           domain.InstructionBuy,
		"BUY_TO_COVER":  domain.InstructionBuy,
		"BUY_TO_CLOSE":  domain.InstructionBuy,
		"EXCHANGE":      domain.Instruction("EXCHANGE"),
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeInstruction(in), in)
	}
}
