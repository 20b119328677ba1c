// Package memory implements the domain store interfaces with in-memory maps.
// Used for testing and development. Not suitable for production (no
// persistence).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// Store implements domain.CredentialStore, domain.TradeLedger,
// domain.SettingsStore and domain.AuditStore.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]domain.BrokerCredential
	trades      map[string]map[string]domain.PersistedTrade // user -> id -> row
	settings    map[string]domain.UserSettings
	audit       []domain.AuditEntry

	failNextBatch    error
	failNextSettings error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		credentials: make(map[string]domain.BrokerCredential),
		trades:      make(map[string]map[string]domain.PersistedTrade),
		settings:    make(map[string]domain.UserSettings),
	}
}

// FailNextBatch makes the next ApplyBatch return err without applying
// anything.
func (s *Store) FailNextBatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextBatch = err
}

// FailNextSettings makes the next MergePortfolioPreference return err.
func (s *Store) FailNextSettings(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSettings = err
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (s *Store) GetCredential(_ context.Context, userID string) (domain.BrokerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID]
	if !ok {
		return domain.BrokerCredential{}, domain.ErrNotFound
	}
	return copyCredential(c), nil
}

func (s *Store) UpdateToken(_ context.Context, userID string, upd domain.TokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[userID]
	if !ok {
		return domain.ErrNotFound
	}
	c.AccessToken = upd.AccessToken
	if upd.RefreshToken != "" {
		c.RefreshToken = upd.RefreshToken
	}
	c.ExpiresAt = upd.ExpiresAt
	s.credentials[userID] = c
	return nil
}

func (s *Store) MergeAccountCache(_ context.Context, userID string, cache domain.AccountCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[userID]
	if !ok {
		return domain.ErrNotFound
	}
	at := cache.SyncedAt
	c.AccountValue = decimal.NewNullDecimal(cache.AccountValue)
	c.Equity = decimal.NewNullDecimal(cache.Equity)
	c.CashBalance = decimal.NewNullDecimal(cache.CashBalance)
	c.LastSyncedAt = &at
	s.credentials[userID] = c
	return nil
}

func (s *Store) UpsertCredential(_ context.Context, c domain.BrokerCredential) error {
	if c.UserID == "" {
		return fmt.Errorf("memory: upsert credential: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.UserID] = copyCredential(c)
	return nil
}

// ---------------------------------------------------------------------------
// Trade ledger
// ---------------------------------------------------------------------------

func (s *Store) ListSynced(_ context.Context, userID string) ([]domain.PersistedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PersistedTrade
	for _, t := range s.trades[userID] {
		if t.SyncedFromBroker && t.Status == domain.TradeStatusActive {
			out = append(out, copyTrade(t))
		}
	}
	sortTrades(out)
	return out, nil
}

// ApplyBatch validates every operation against a copy of the user's rows and
// replaces the rows only when all of them succeed.
func (s *Store) ApplyBatch(_ context.Context, userID string, batch domain.LedgerBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNextBatch; err != nil {
		s.failNextBatch = nil
		return fmt.Errorf("memory: apply ledger batch: %w", err)
	}

	next := make(map[string]domain.PersistedTrade, len(s.trades[userID])+len(batch.Creates))
	for id, t := range s.trades[userID] {
		next[id] = t
	}

	for i, t := range batch.Creates {
		if _, exists := next[t.ID]; exists || t.ID == "" {
			return fmt.Errorf("memory: apply ledger batch: create %d (%s): duplicate id %q", i, t.Key(), t.ID)
		}
		if t.SyncedFromBroker && t.Status == domain.TradeStatusActive && activeKeyTaken(next, t.Key()) {
			return fmt.Errorf("memory: apply ledger batch: create %d (%s): active key exists", i, t.Key())
		}
		row := copyTrade(t)
		row.UserID = userID
		next[t.ID] = row
	}

	for i, t := range batch.Updates {
		cur, ok := next[t.ID]
		if !ok || !cur.SyncedFromBroker || cur.Status != domain.TradeStatusActive {
			return fmt.Errorf("memory: apply ledger batch: update %d (%s): %w", i, t.Key(), domain.ErrNotFound)
		}
		cur.EntryPrice = t.EntryPrice
		cur.StopPrice = t.StopPrice
		cur.PositionSize = t.PositionSize
		cur.RiskAmount = t.RiskAmount
		cur.HasWorkingStop = t.HasWorkingStop
		cur.CurrentPrice = t.CurrentPrice
		cur.Support = t.Support
		cur.AssetType = t.AssetType
		cur.Market = t.Market
		cur.LastSyncedAt = t.LastSyncedAt
		cur.UpdatedAt = t.UpdatedAt
		next[t.ID] = cur
	}

	for i, id := range batch.Deletes {
		cur, ok := next[id]
		if !ok || !cur.SyncedFromBroker {
			return fmt.Errorf("memory: apply ledger batch: delete %d (%s): %w", i, id, domain.ErrNotFound)
		}
		delete(next, id)
	}

	s.trades[userID] = next
	return nil
}

// AllTrades returns every row of the user's ledger, synced or not, ordered
// by key.
func (s *Store) AllTrades(userID string) []domain.PersistedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PersistedTrade, 0, len(s.trades[userID]))
	for _, t := range s.trades[userID] {
		out = append(out, copyTrade(t))
	}
	sortTrades(out)
	return out
}

// PutTrade inserts or replaces a single row outside of any batch. Intended for
// seeding manually journaled rows.
func (s *Store) PutTrade(t domain.PersistedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trades[t.UserID] == nil {
		s.trades[t.UserID] = make(map[string]domain.PersistedTrade)
	}
	s.trades[t.UserID][t.ID] = copyTrade(t)
}

func activeKeyTaken(rows map[string]domain.PersistedTrade, key domain.TradeKey) bool {
	for _, r := range rows {
		if r.SyncedFromBroker && r.Status == domain.TradeStatusActive && r.Key() == key {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *Store) GetSettings(_ context.Context, userID string) (domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.settings[userID]
	out := domain.UserSettings{
		UserID:           userID,
		PortfolioCapital: make(map[string]domain.PortfolioPreference, len(cur.PortfolioCapital)),
	}
	if !ok {
		return out, nil
	}
	out.UpdatedAt = cur.UpdatedAt
	for k, v := range cur.PortfolioCapital {
		out.PortfolioCapital[k] = copyPreference(v)
	}
	return out, nil
}

func (s *Store) MergePortfolioPreference(_ context.Context, userID string, pref domain.PortfolioPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNextSettings; err != nil {
		s.failNextSettings = nil
		return fmt.Errorf("memory: merge portfolio preference: %w", err)
	}

	cur, ok := s.settings[userID]
	if !ok {
		cur = domain.UserSettings{UserID: userID, PortfolioCapital: map[string]domain.PortfolioPreference{}}
	}
	cur.PortfolioCapital[pref.Market] = copyPreference(pref)
	cur.UpdatedAt = time.Now().UTC()
	s.settings[userID] = cur
	return nil
}

// SetPreference writes one preference directly, e.g. a manually edited value.
func (s *Store) SetPreference(userID string, pref domain.PortfolioPreference) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.settings[userID]
	if !ok {
		cur = domain.UserSettings{UserID: userID, PortfolioCapital: map[string]domain.PortfolioPreference{}}
	}
	cur.PortfolioCapital[pref.Market] = copyPreference(pref)
	s.settings[userID] = cur
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

func (s *Store) Log(_ context.Context, userID, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := make(map[string]any, len(detail))
	for k, v := range detail {
		d[k] = v
	}
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        int64(len(s.audit) + 1),
		UserID:    userID,
		Event:     event,
		Detail:    d,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if e.UserID != userID {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Copy helpers
// ---------------------------------------------------------------------------

func copyTrade(t domain.PersistedTrade) domain.PersistedTrade {
	if t.Target != nil {
		v := *t.Target
		t.Target = &v
	}
	if t.Contracts != nil {
		c := make([]string, len(t.Contracts))
		copy(c, t.Contracts)
		t.Contracts = c
	}
	return t
}

func copyCredential(c domain.BrokerCredential) domain.BrokerCredential {
	c.LastSyncedAt = copyPtr(c.LastSyncedAt)
	return c
}

func copyPreference(p domain.PortfolioPreference) domain.PortfolioPreference {
	p.LastSyncedAt = copyPtr(p.LastSyncedAt)
	return p
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortTrades(ts []domain.PersistedTrade) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Symbol != ts[j].Symbol {
			return ts[i].Symbol < ts[j].Symbol
		}
		if ts[i].Direction != ts[j].Direction {
			return ts[i].Direction < ts[j].Direction
		}
		return ts[i].ID < ts[j].ID
	})
}
