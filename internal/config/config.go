// Package config defines the top-level configuration for the trade sync
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESYNC_* environment variables.
type Config struct {
	Schwab   SchwabConfig   `toml:"schwab"`
	Sync     SyncConfig     `toml:"sync"`
	Store    string         `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Crypto   CryptoConfig   `toml:"crypto"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SchwabConfig holds the broker API endpoints and OAuth client credentials.
type SchwabConfig struct {
	APIBaseURL      string   `toml:"api_base_url"`
	TokenURL        string   `toml:"token_url"`
	ClientID        string   `toml:"client_id"`
	ClientSecret    string   `toml:"client_secret"`
	OrderWindowDays int      `toml:"order_window_days"`
	RequestTimeout  duration `toml:"request_timeout"`
}

// SyncConfig holds the synchronization engine parameters.
type SyncConfig struct {
	// RefreshSkew is how close to expiry an access token may get before it is
	// refreshed.
	RefreshSkew duration `toml:"refresh_skew"`

	// RefreshTokenTTL is the lifetime of a refresh token measured from linkedAt.
	RefreshTokenTTL duration `toml:"refresh_token_ttl"`

	// FallbackStopPct is the distance of the heuristic stop from entry when no
	// working stop order exists.
	FallbackStopPct float64 `toml:"fallback_stop_pct"`

	Market          string   `toml:"market"`
	StoreTimeout    duration `toml:"store_timeout"`
	TrackedStatuses []string `toml:"tracked_statuses"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters for run reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CryptoConfig holds the key material used to seal broker tokens at rest.
type CryptoConfig struct {
	TokenPassphrase string `toml:"token_passphrase"`
	TokenSalt       string `toml:"token_salt"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	// APIKey is a comma-separated list; more than one key allows rotation.
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`

	// RateLimit is the number of requests allowed per client per minute.
	// Zero disables rate limiting.
	RateLimit int `toml:"rate_limit"`

	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Schwab: SchwabConfig{
			APIBaseURL:      "https://api.schwabapi.com",
			TokenURL:        "https://api.schwabapi.com/v1/oauth/token",
			OrderWindowDays: 60,
			RequestTimeout:  duration{15 * time.Second},
		},
		Sync: SyncConfig{
			RefreshSkew:     duration{5 * time.Minute},
			RefreshTokenTTL: duration{7 * 24 * time.Hour},
			FallbackStopPct: 0.05,
			Market:          "US",
			StoreTimeout:    duration{10 * time.Second},
			TrackedStatuses: []string{"WORKING", "AWAITING_STOP_CONDITION", "QUEUED", "PENDING_ACTIVATION"},
		},
		Store: "postgres",
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{2 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradesync-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       30,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"auth_expired", "sync_failed", "settings_write_failed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"once":   true,
}

// validStores enumerates the accepted values for Config.Store.
var validStores = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validStores[strings.ToLower(c.Store)] {
		errs = append(errs, fmt.Sprintf("unknown store %q (valid: postgres, memory)", c.Store))
	}

	// Schwab
	if c.Schwab.APIBaseURL == "" {
		errs = append(errs, "schwab: api_base_url must not be empty")
	}
	if c.Schwab.TokenURL == "" {
		errs = append(errs, "schwab: token_url must not be empty")
	}
	if (c.Schwab.ClientID == "") != (c.Schwab.ClientSecret == "") {
		errs = append(errs, "schwab: client_id and client_secret must be set together")
	}
	if c.Schwab.OrderWindowDays < 1 {
		errs = append(errs, "schwab: order_window_days must be >= 1")
	}
	if c.Schwab.RequestTimeout.Duration <= 0 {
		errs = append(errs, "schwab: request_timeout must be > 0")
	}

	// Sync
	if c.Sync.RefreshSkew.Duration < 0 {
		errs = append(errs, "sync: refresh_skew must be >= 0")
	}
	if c.Sync.RefreshTokenTTL.Duration <= 0 {
		errs = append(errs, "sync: refresh_token_ttl must be > 0")
	}
	if c.Sync.FallbackStopPct <= 0 || c.Sync.FallbackStopPct >= 1 {
		errs = append(errs, fmt.Sprintf("sync: fallback_stop_pct must be in (0, 1), got %g", c.Sync.FallbackStopPct))
	}
	if strings.TrimSpace(c.Sync.Market) == "" {
		errs = append(errs, "sync: market must not be empty")
	}
	if c.Sync.StoreTimeout.Duration <= 0 {
		errs = append(errs, "sync: store_timeout must be > 0")
	}
	if len(c.Sync.TrackedStatuses) == 0 {
		errs = append(errs, "sync: tracked_statuses must not be empty")
	}
	for _, s := range c.Sync.TrackedStatuses {
		if !domain.OrderStatus(s).IsTracked() {
			errs = append(errs, fmt.Sprintf("sync: unknown tracked status %q", s))
		}
	}

	// Postgres
	if strings.EqualFold(c.Store, "postgres") {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Crypto
	if c.Crypto.TokenPassphrase != "" && c.Crypto.TokenSalt == "" {
		errs = append(errs, "crypto: token_salt is required when token_passphrase is set")
	}

	// Server
	if strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal configuration problems worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if strings.EqualFold(c.Mode, "server") {
		if c.Crypto.TokenPassphrase == "" && strings.EqualFold(c.Store, "postgres") {
			w = append(w, "crypto: token_passphrase is empty, broker tokens are stored unsealed")
		}
		if c.Server.APIKey == "" {
			w = append(w, "server: api_key is empty, API authentication is disabled")
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			w = append(w, "server: rate_limit is ignored because redis is disabled")
		}
	}
	if c.Schwab.ClientID == "" {
		w = append(w, "schwab: client_id is empty, token refresh will fail")
	}
	return w
}
