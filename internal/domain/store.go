package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CredentialStore persists the broker credential embedded in a user record.
type CredentialStore interface {
	// GetCredential returns ErrNotFound when the user has no credential.
	GetCredential(ctx context.Context, userID string) (BrokerCredential, error)
	UpdateToken(ctx context.Context, userID string, upd TokenUpdate) error
	MergeAccountCache(ctx context.Context, userID string, cache AccountCache) error
	// UpsertCredential stores a freshly linked credential.
	UpsertCredential(ctx context.Context, cred BrokerCredential) error
}

// TradeLedger persists a user's trade journal.
type TradeLedger interface {
	// ListSynced returns rows with SyncedFromBroker set and status ACTIVE.
	ListSynced(ctx context.Context, userID string) ([]PersistedTrade, error)
	// ApplyBatch applies every operation of batch or none of them.
	ApplyBatch(ctx context.Context, userID string, batch LedgerBatch) error
}

// SettingsStore persists per-user settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (UserSettings, error)
	// MergePortfolioPreference replaces the entry for pref.Market and leaves
	// other markets untouched.
	MergePortfolioPreference(ctx context.Context, userID string, pref PortfolioPreference) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	UserID    string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, userID, event string, detail map[string]any) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]AuditEntry, error)
}
