package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zijian-Wang/tradesync/internal/cache/redis"
	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/Zijian-Wang/tradesync/internal/server"
	"github.com/Zijian-Wang/tradesync/internal/server/handler"
)

// ServerMode serves the HTTP invocation surface until ctx is cancelled, then
// shuts the server down gracefully.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Sync: handler.NewSyncHandler(deps.Sync, handler.SyncLock{
			Locks: deps.LockManager,
			Key:   redis.SyncLockKey,
			TTL:   a.cfg.Redis.LockTTL.Duration,
		}, a.logger),
		Trades: handler.NewTradesHandler(deps.Ledger, deps.Audit, a.logger),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// OnceMode runs a single synchronization for userID and writes the result
// as JSON to stdout.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies, userID string) error {
	return a.runOnce(ctx, deps, userID, os.Stdout)
}

func (a *App) runOnce(ctx context.Context, deps *Dependencies, userID string, out io.Writer) error {
	if userID == "" {
		return fmt.Errorf("once mode: -user is required: %w", domain.ErrInvalidInput)
	}
	a.logger.InfoContext(ctx, "starting once mode", slog.String("user_id", userID))

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, redis.SyncLockKey(userID), a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("once mode: sync already running for %s: %w", userID, err)
			}
			return fmt.Errorf("once mode: acquire lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	res, err := deps.Sync.Run(ctx, userID)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("once mode: write result: %w", err)
	}

	a.logger.InfoContext(ctx, "once mode finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
