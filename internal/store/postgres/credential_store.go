package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zijian-Wang/tradesync/internal/crypto"
	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// CredentialStore implements domain.CredentialStore using PostgreSQL. Access
// and refresh tokens are sealed before they are written.
type CredentialStore struct {
	pool   *pgxpool.Pool
	sealer *crypto.Sealer
}

// NewCredentialStore creates a new CredentialStore backed by the given
// connection pool. A nil sealer stores tokens as-is.
func NewCredentialStore(pool *pgxpool.Pool, sealer *crypto.Sealer) *CredentialStore {
	return &CredentialStore{pool: pool, sealer: sealer}
}

// GetCredential returns the user's broker credential or domain.ErrNotFound.
func (s *CredentialStore) GetCredential(ctx context.Context, userID string) (domain.BrokerCredential, error) {
	const query = `
		SELECT user_id, access_token, refresh_token, expires_at, linked_at,
			account_hash, account_number, account_value, equity, cash_balance,
			last_synced_at
		FROM broker_credentials WHERE user_id = $1`

	var c domain.BrokerCredential
	var access, refresh string
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&c.UserID, &access, &refresh, &c.ExpiresAt, &c.LinkedAt,
		&c.AccountHash, &c.AccountNumber, &c.AccountValue, &c.Equity, &c.CashBalance,
		&c.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BrokerCredential{}, domain.ErrNotFound
		}
		return domain.BrokerCredential{}, fmt.Errorf("postgres: get credential: %w", err)
	}

	if c.AccessToken, err = s.sealer.Open(access); err != nil {
		return domain.BrokerCredential{}, fmt.Errorf("postgres: open access token: %w", err)
	}
	if c.RefreshToken, err = s.sealer.Open(refresh); err != nil {
		return domain.BrokerCredential{}, fmt.Errorf("postgres: open refresh token: %w", err)
	}
	return c, nil
}

// UpdateToken stores a refreshed access token. An empty upd.RefreshToken keeps
// the stored refresh token.
func (s *CredentialStore) UpdateToken(ctx context.Context, userID string, upd domain.TokenUpdate) error {
	access, err := s.sealer.Seal(upd.AccessToken)
	if err != nil {
		return fmt.Errorf("postgres: seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(upd.RefreshToken)
	if err != nil {
		return fmt.Errorf("postgres: seal refresh token: %w", err)
	}

	const query = `
		UPDATE broker_credentials SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			expires_at = $4,
			updated_at = NOW()
		WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, query, userID, access, refresh, upd.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MergeAccountCache writes the cached account figures without touching tokens.
func (s *CredentialStore) MergeAccountCache(ctx context.Context, userID string, cache domain.AccountCache) error {
	const query = `
		UPDATE broker_credentials SET
			account_value = $2,
			equity = $3,
			cash_balance = $4,
			last_synced_at = $5,
			updated_at = NOW()
		WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, query, userID,
		cache.AccountValue, cache.Equity, cache.CashBalance, cache.SyncedAt)
	if err != nil {
		return fmt.Errorf("postgres: merge account cache: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertCredential creates the user row if needed and replaces the
// credential.
func (s *CredentialStore) UpsertCredential(ctx context.Context, c domain.BrokerCredential) error {
	access, err := s.sealer.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("postgres: seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("postgres: seal refresh token: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, c.UserID,
		); err != nil {
			return fmt.Errorf("postgres: upsert user: %w", err)
		}

		const query = `
			INSERT INTO broker_credentials (
				user_id, access_token, refresh_token, expires_at, linked_at,
				account_hash, account_number, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				expires_at = EXCLUDED.expires_at,
				linked_at = EXCLUDED.linked_at,
				account_hash = EXCLUDED.account_hash,
				account_number = EXCLUDED.account_number,
				updated_at = NOW()`

		if _, err := tx.Exec(ctx, query,
			c.UserID, access, refresh, c.ExpiresAt, c.LinkedAt,
			c.AccountHash, c.AccountNumber,
		); err != nil {
			return fmt.Errorf("postgres: upsert credential: %w", err)
		}
		return nil
	})
}
