package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/Zijian-Wang/tradesync/internal/blob/s3"
	"github.com/Zijian-Wang/tradesync/internal/cache/redis"
	"github.com/Zijian-Wang/tradesync/internal/config"
	"github.com/Zijian-Wang/tradesync/internal/crypto"
	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/Zijian-Wang/tradesync/internal/metrics"
	"github.com/Zijian-Wang/tradesync/internal/notify"
	"github.com/Zijian-Wang/tradesync/internal/platform/schwab"
	"github.com/Zijian-Wang/tradesync/internal/server/handler"
	"github.com/Zijian-Wang/tradesync/internal/service"
	"github.com/Zijian-Wang/tradesync/internal/store/memory"
	"github.com/Zijian-Wang/tradesync/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Credentials domain.CredentialStore
	Ledger      domain.TradeLedger
	Settings    domain.SettingsStore
	Audit       domain.AuditStore

	// Caches (nil when redis is disabled)
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Events      domain.EventPublisher

	// Blob storage (nil when s3 is disabled)
	Archiver *s3blob.ReportArchiver

	// Notifications
	Notifier *notify.Notifier

	// Broker
	Broker *schwab.Client

	// Engine
	Sync *service.SyncService

	// HealthChecks probes every connected backend.
	HealthChecks map[string]handler.HealthCheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheckFunc{}}

	// --- Document store ---
	switch cfg.Store {
	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory store, data is not persisted")
		st := memory.New()
		deps.Credentials, deps.Ledger, deps.Settings, deps.Audit = st, st, st, st
	default:
		sealer, err := crypto.NewSealer(cfg.Crypto.TokenPassphrase, cfg.Crypto.TokenSalt)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: token sealer: %w", err)
		}

		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Credentials = postgres.NewCredentialStore(pool, sealer)
		deps.Ledger = postgres.NewTradeStore(pool)
		deps.Settings = postgres.NewSettingsStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Events = redis.NewEventBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client))
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Broker ---
	deps.Broker = schwab.NewClient(schwab.Config{
		BaseURL:      cfg.Schwab.APIBaseURL,
		TokenURL:     cfg.Schwab.TokenURL,
		ClientID:     cfg.Schwab.ClientID,
		ClientSecret: cfg.Schwab.ClientSecret,
		Timeout:      cfg.Schwab.RequestTimeout.Duration,
	}, logger, schwab.WithLatencyObserver(metrics.ObserveBroker))

	deps.Sync = newSyncService(cfg, deps, logger)
	return deps, cleanup, nil
}

// newSyncService assembles the engine from the wired backends. Optional side
// channels are attached only when their backend is configured.
func newSyncService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *service.SyncService {
	storeTimeout := cfg.Sync.StoreTimeout.Duration

	statuses := make([]domain.OrderStatus, 0, len(cfg.Sync.TrackedStatuses))
	for _, s := range cfg.Sync.TrackedStatuses {
		statuses = append(statuses, domain.OrderStatus(s))
	}
	window := time.Duration(cfg.Schwab.OrderWindowDays) * 24 * time.Hour

	engine := service.SyncDeps{
		Tokens: service.NewTokenProvider(deps.Credentials, deps.Broker, service.TokenConfig{
			RefreshSkew:     cfg.Sync.RefreshSkew.Duration,
			RefreshTokenTTL: cfg.Sync.RefreshTokenTTL.Duration,
			StoreTimeout:    storeTimeout,
		}, logger),
		Broker:     deps.Broker,
		Orders:     service.NewOrderAggregator(deps.Broker, statuses, window, logger),
		Builder:    service.NewSnapshotBuilder(cfg.Sync.FallbackStopPct, cfg.Sync.Market),
		Reconciler: service.NewLedgerReconciler(deps.Ledger, storeTimeout, logger),
		Settings:   service.NewSettingsPropagator(deps.Credentials, deps.Settings, cfg.Sync.Market, storeTimeout, logger),
	}

	opts := []service.SyncOption{
		service.WithAudit(deps.Audit),
		service.WithRecorder(metrics.Recorder{}),
	}
	if deps.Events != nil {
		opts = append(opts, service.WithEvents(deps.Events))
	}
	if deps.Archiver != nil {
		opts = append(opts, service.WithArchiver(deps.Archiver))
	}
	if deps.Notifier.Enabled() {
		opts = append(opts, service.WithNotifier(deps.Notifier))
	}
	return service.NewSyncService(engine, storeTimeout, logger, opts...)
}
