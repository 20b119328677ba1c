package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// TokenConfig holds the token lifecycle parameters.
type TokenConfig struct {
	// RefreshSkew is how far ahead of expiry the access token is refreshed.
	RefreshSkew time.Duration

	// RefreshTokenTTL is the refresh token lifetime measured from LinkedAt.
	RefreshTokenTTL time.Duration

	// StoreTimeout bounds each credential store call.
	StoreTimeout time.Duration
}

// TokenProvider returns a valid bearer token for a user, refreshing it when
// it is close to expiry.
type TokenProvider struct {
	creds     domain.CredentialStore
	refresher domain.TokenRefresher
	cfg       TokenConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(
	creds domain.CredentialStore,
	refresher domain.TokenRefresher,
	cfg TokenConfig,
	logger *slog.Logger,
) *TokenProvider {
	return &TokenProvider{
		creds:     creds,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "token_provider")),
	}
}

// Credential loads the broker credential for userID. A missing or
// incomplete credential is reported as domain.ErrNotLinked.
func (p *TokenProvider) Credential(ctx context.Context, userID string) (domain.BrokerCredential, error) {
	sctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()

	cred, err := p.creds.GetCredential(sctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BrokerCredential{}, fmt.Errorf("token_provider: user %s: %w", userID, domain.ErrNotLinked)
	}
	if err != nil {
		return domain.BrokerCredential{}, fmt.Errorf("token_provider: load credential: %w", err)
	}
	if !cred.Linked() {
		return domain.BrokerCredential{}, fmt.Errorf("token_provider: user %s: %w", userID, domain.ErrNotLinked)
	}
	return cred, nil
}

// EnsureToken returns the cached access token when it is valid for longer
// than RefreshSkew, otherwise refreshes it and persists the new grant. The
// credential store is written at most once per call.
func (p *TokenProvider) EnsureToken(ctx context.Context, cred domain.BrokerCredential) (string, error) {
	now := p.now()

	// A dead refresh token cannot be renewed implicitly, whatever the state
	// of the access token.
	if p.cfg.RefreshTokenTTL > 0 && !cred.LinkedAt.IsZero() && now.Sub(cred.LinkedAt) > p.cfg.RefreshTokenTTL {
		p.logger.WarnContext(ctx, "token_provider: refresh token expired",
			slog.String("user_id", cred.UserID),
			slog.Time("linked_at", cred.LinkedAt),
		)
		return "", fmt.Errorf("token_provider: refresh token older than %s: %w", p.cfg.RefreshTokenTTL, domain.ErrAuthExpired)
	}

	if cred.AccessToken != "" && cred.ExpiresAt.Sub(now) > p.cfg.RefreshSkew {
		return cred.AccessToken, nil
	}

	grant, err := p.refresher.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		p.logger.WarnContext(ctx, "token_provider: refresh failed",
			slog.String("user_id", cred.UserID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, domain.ErrAuthExpired) {
			return "", fmt.Errorf("token_provider: refresh: %w", err)
		}
		return "", fmt.Errorf("token_provider: refresh: %w", &domain.RefreshError{Err: err})
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("token_provider: refresh: %w", &domain.RefreshError{Err: errors.New("empty access token")})
	}

	upd := domain.TokenUpdate{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    now.Add(grant.ExpiresIn),
	}

	sctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if err := p.creds.UpdateToken(sctx, cred.UserID, upd); err != nil {
		return "", fmt.Errorf("token_provider: persist token: %w", err)
	}

	p.logger.InfoContext(ctx, "token_provider: access token refreshed",
		slog.String("user_id", cred.UserID),
		slog.Time("expires_at", upd.ExpiresAt),
		slog.Bool("rotated", grant.RefreshToken != ""),
	)
	return grant.AccessToken, nil
}

// withTimeout derives a context bounded by d. A non-positive d leaves ctx
// unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
