// Package schwab is the REST client for the Charles Schwab Trader API. It
// covers the account positions endpoint, the orders endpoint, and the OAuth
// token refresh.
package schwab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/shopspring/decimal"
)

// enteredTimeLayout is the timestamp format accepted by the orders endpoint.
const enteredTimeLayout = "2006-01-02T15:04:05.000Z"

// maxResponseBody bounds how much of a response body is read.
const maxResponseBody = 8 << 20

// Endpoint labels used for errors and latency observation.
const (
	EndpointAccount = "accounts"
	EndpointOrders  = "orders"
	EndpointToken   = "oauth_token"
)

// Config holds the client's endpoints and credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Timeout is applied to every outbound call.
	Timeout time.Duration
}

// LatencyObserver receives the duration and status of every outbound call.
// status is zero when no response was received.
type LatencyObserver func(endpoint string, status int, d time.Duration)

// Client is the REST client for the Schwab Trader API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	observe    LatencyObserver
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLatencyObserver installs a per-call latency hook.
func WithLatencyObserver(fn LatencyObserver) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient creates a new Schwab client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With(slog.String("component", "schwab")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccount fetches the account's open positions and balances.
func (c *Client) GetAccount(ctx context.Context, accessToken, accountHash string) (domain.AccountSnapshot, error) {
	path := fmt.Sprintf("/trader/v1/accounts/%s?fields=positions", url.PathEscape(accountHash))

	body, err := c.doAuthorized(ctx, EndpointAccount, accessToken, path)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("schwab: get account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("schwab: decode account: %w: %w", domain.ErrUpstreamFetch, err)
	}

	return toAccountSnapshot(resp), nil
}

// GetOrders fetches the orders entered within q's window with status q.Status.
// Child orders of bracket and OCO strategies are flattened into the result.
func (c *Client) GetOrders(ctx context.Context, accessToken, accountHash string, q domain.OrderQuery) ([]domain.RawOrder, error) {
	params := url.Values{}
	params.Set("fromEnteredTime", q.From.UTC().Format(enteredTimeLayout))
	params.Set("toEnteredTime", q.To.UTC().Format(enteredTimeLayout))
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	path := fmt.Sprintf("/trader/v1/accounts/%s/orders?%s", url.PathEscape(accountHash), params.Encode())

	body, err := c.doAuthorized(ctx, EndpointOrders, accessToken, path)
	if err != nil {
		return nil, fmt.Errorf("schwab: get orders %s: %w", q.Status, err)
	}

	var resp []order
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("schwab: decode orders: %w: %w", domain.ErrUpstreamFetch, err)
	}

	out := make([]domain.RawOrder, 0, len(resp))
	for _, o := range resp {
		out = appendOrder(out, o)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthorized sends a bearer-authorized GET and returns the response body.
// Non-2xx responses are returned as *domain.UpstreamError.
func (c *Client) doAuthorized(ctx context.Context, endpoint, accessToken, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamFetch, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.record(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %w", domain.ErrUpstreamFetch, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewUpstreamError(endpoint, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) record(endpoint string, status int, d time.Duration) {
	c.logger.Debug("schwab: request",
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.Duration("elapsed", d),
	)
	if c.observe != nil {
		c.observe(endpoint, status, d)
	}
}

func toAccountSnapshot(resp accountResponse) domain.AccountSnapshot {
	acct := resp.SecuritiesAccount
	snap := domain.AccountSnapshot{
		AccountNumber: acct.AccountNumber,
		Positions:     make([]domain.RawPosition, 0, len(acct.Positions)),
	}

	for _, p := range acct.Positions {
		snap.Positions = append(snap.Positions, domain.RawPosition{
			Symbol:        p.Instrument.Symbol,
			AssetType:     p.Instrument.AssetType,
			LongQuantity:  p.LongQuantity,
			ShortQuantity: p.ShortQuantity,
			AveragePrice:  averagePrice(p),
			MarketValue:   p.MarketValue,
		})
	}

	var liq, equity, cash *decimal.Decimal
	if b := acct.CurrentBalances; b != nil {
		liq, equity = b.LiquidationValue, b.Equity
		cash = firstNonNil(b.CashBalance, b.AvailableFunds)
	}
	if agg := resp.AggregatedBalance; agg != nil {
		liq = firstNonNil(liq, agg.LiquidationValue, agg.CurrentLiquidationValue)
	}
	equity = firstNonNil(equity, liq)

	snap.Balances = domain.AccountBalances{
		LiquidationValue: valueOrZero(liq),
		Equity:           valueOrZero(equity),
		CashBalance:      valueOrZero(cash),
	}
	return snap
}

// averagePrice prefers the generic average and falls back to the side-specific
// figure reported for some account types.
func averagePrice(p position) decimal.Decimal {
	if !p.AveragePrice.IsZero() {
		return p.AveragePrice
	}
	if p.LongQuantity.IsPositive() && p.AverageLongPrice != nil {
		return *p.AverageLongPrice
	}
	if p.ShortQuantity.IsPositive() && p.AverageShortPrice != nil {
		return *p.AverageShortPrice
	}
	return p.AveragePrice
}

func appendOrder(out []domain.RawOrder, o order) []domain.RawOrder {
	raw := domain.RawOrder{
		OrderID:   strconv.FormatInt(o.OrderID, 10),
		Type:      domain.OrderType(o.OrderType),
		Status:    domain.OrderStatus(o.Status),
		StopPrice: o.StopPrice,
	}
	if len(o.OrderLegCollection) > 0 {
		leg := o.OrderLegCollection[0]
		raw.Instruction = normalizeInstruction(leg.Instruction)
		raw.Symbol = leg.Instrument.Symbol
	}
	out = append(out, raw)

	for _, child := range o.ChildOrderStrategies {
		out = appendOrder(out, child)
	}
	return out
}

// normalizeInstruction folds the closing instructions onto BUY/SELL.
// SELL_SHORT opens a short, so it is kept verbatim with everything else and
// never matches a closing instruction.
func normalizeInstruction(s string) domain.Instruction {
	switch s {
	case "SELL", "SELL_TO_CLOSE":
		return domain.InstructionSell
	case "BUY", "BUY_TO_COVER", "BUY_TO_CLOSE":
		return domain.InstructionBuy
	default:
		return domain.Instruction(s)
	}
}

func firstNonNil(vals ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func valueOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
