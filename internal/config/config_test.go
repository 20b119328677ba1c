package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Schwab.OrderWindowDays)
	assert.Equal(t, 5*time.Minute, cfg.Sync.RefreshSkew.Duration)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.RefreshTokenTTL.Duration)
	assert.InDelta(t, 0.05, cfg.Sync.FallbackStopPct, 1e-9)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "once"
store = "memory"

[sync]
refresh_skew = "2m"
market = "CA"

[server]
cors_origins = ["https://app.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("TRADESYNC_SCHWAB_CLIENT_ID", "cid")
	t.Setenv("TRADESYNC_SCHWAB_CLIENT_SECRET", "csecret")
	t.Setenv("TRADESYNC_SYNC_MARKET", "US")
	t.Setenv("TRADESYNC_NOTIFY_EVENTS", "sync_failed, auth_expired ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 2*time.Minute, cfg.Sync.RefreshSkew.Duration)
	assert.Equal(t, "US", cfg.Sync.Market, "env wins over file")
	assert.Equal(t, "cid", cfg.Schwab.ClientID)
	assert.Equal(t, []string{"sync_failed", "auth_expired"}, cfg.Notify.Events)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	// untouched defaults survive
	assert.Equal(t, 60, cfg.Schwab.OrderWindowDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDefaultTrackedStatusesMatchDomain(t *testing.T) {
	cfg := Defaults()
	require.Len(t, cfg.Sync.TrackedStatuses, len(domain.TrackedOrderStatuses))
	for i, s := range cfg.Sync.TrackedStatuses {
		assert.Equal(t, domain.TrackedOrderStatuses[i], domain.OrderStatus(s))
	}

	cfg.Sync.TrackedStatuses = []string{"QUEUED"}
	assert.NoError(t, cfg.Validate(), "a subset of the tracked statuses is accepted")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "batch"
	cfg.Sync.FallbackStopPct = 1.5
	cfg.Sync.TrackedStatuses = []string{"WORKING", "FILLED"}
	cfg.Schwab.ClientID = "only-id"
	cfg.Crypto.TokenPassphrase = "secret"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "batch"`)
	assert.Contains(t, msg, "fallback_stop_pct")
	assert.Contains(t, msg, `unknown tracked status "FILLED"`)
	assert.Contains(t, msg, "client_id and client_secret")
	assert.Contains(t, msg, "token_salt is required")
}

func TestValidateSkipsPostgresForMemoryStore(t *testing.T) {
	cfg := Defaults()
	cfg.Store = "memory"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	assert.NoError(t, cfg.Validate())
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	w := cfg.Warnings()
	assert.Contains(t, w, "crypto: token_passphrase is empty, broker tokens are stored unsealed")
	assert.Contains(t, w, "server: api_key is empty, API authentication is disabled")

	cfg.Crypto.TokenPassphrase = "p"
	cfg.Crypto.TokenSalt = "s"
	cfg.Server.APIKey = "k"
	cfg.Schwab.ClientID = "id"
	cfg.Schwab.ClientSecret = "secret"
	assert.Empty(t, cfg.Warnings())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Schwab.ClientSecret = "csecret"
	cfg.Crypto.TokenPassphrase = "pass"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Schwab.ClientSecret)
	assert.Equal(t, "***", out.Crypto.TokenPassphrase)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.Redis.Password, "empty secrets stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "csecret", cfg.Schwab.ClientSecret)
}
