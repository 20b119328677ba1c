package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESYNC_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Schwab ──
	setStr(&cfg.Schwab.APIBaseURL, "TRADESYNC_SCHWAB_API_BASE_URL")
	setStr(&cfg.Schwab.TokenURL, "TRADESYNC_SCHWAB_TOKEN_URL")
	setStr(&cfg.Schwab.ClientID, "TRADESYNC_SCHWAB_CLIENT_ID")
	setStr(&cfg.Schwab.ClientSecret, "TRADESYNC_SCHWAB_CLIENT_SECRET")
	setInt(&cfg.Schwab.OrderWindowDays, "TRADESYNC_SCHWAB_ORDER_WINDOW_DAYS")
	setDuration(&cfg.Schwab.RequestTimeout, "TRADESYNC_SCHWAB_REQUEST_TIMEOUT")

	// ── Sync ──
	setDuration(&cfg.Sync.RefreshSkew, "TRADESYNC_SYNC_REFRESH_SKEW")
	setDuration(&cfg.Sync.RefreshTokenTTL, "TRADESYNC_SYNC_REFRESH_TOKEN_TTL")
	setFloat64(&cfg.Sync.FallbackStopPct, "TRADESYNC_SYNC_FALLBACK_STOP_PCT")
	setStr(&cfg.Sync.Market, "TRADESYNC_SYNC_MARKET")
	setDuration(&cfg.Sync.StoreTimeout, "TRADESYNC_SYNC_STORE_TIMEOUT")
	setStringSlice(&cfg.Sync.TrackedStatuses, "TRADESYNC_SYNC_TRACKED_STATUSES")

	// ── Postgres ──
	setStr(&cfg.Store, "TRADESYNC_STORE")
	setStr(&cfg.Postgres.DSN, "TRADESYNC_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADESYNC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADESYNC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADESYNC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADESYNC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADESYNC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADESYNC_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADESYNC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADESYNC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADESYNC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADESYNC_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "TRADESYNC_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADESYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADESYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADESYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADESYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADESYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADESYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADESYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADESYNC_S3_FORCE_PATH_STYLE")

	// ── Crypto ──
	setStr(&cfg.Crypto.TokenPassphrase, "TRADESYNC_CRYPTO_TOKEN_PASSPHRASE")
	setStr(&cfg.Crypto.TokenSalt, "TRADESYNC_CRYPTO_TOKEN_SALT")

	// ── Server ──
	setInt(&cfg.Server.Port, "TRADESYNC_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADESYNC_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESYNC_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TRADESYNC_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.ShutdownTimeout, "TRADESYNC_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADESYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADESYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADESYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADESYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADESYNC_MODE")
	setStr(&cfg.LogLevel, "TRADESYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
