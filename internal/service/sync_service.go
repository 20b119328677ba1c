package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// Event channel and notification event names used by sync runs.
const (
	EventsChannel = "sync"

	notifyAuthExpired   = "auth_expired"
	notifySyncFailed    = "sync_failed"
	notifySettingsWrite = "settings_write_failed"
)

// Archiver stores the report of a committed run.
type Archiver interface {
	Archive(ctx context.Context, res domain.SyncResult) (string, error)
}

// Notifier delivers operator alerts for an event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunRecorder receives run metrics.
type RunRecorder interface {
	RunFinished(outcome string, d time.Duration)
	LedgerCommitted(c domain.LedgerChanges, at time.Time)
}

// SyncDeps are the collaborators a SyncService cannot run without.
type SyncDeps struct {
	Tokens     *TokenProvider
	Broker     domain.BrokerClient
	Orders     *OrderAggregator
	Builder    *SnapshotBuilder
	Reconciler *LedgerReconciler
	Settings   *SettingsPropagator
}

// SyncOption configures optional side channels of a SyncService.
type SyncOption func(*SyncService)

// WithAudit records sync_completed and sync_failed entries.
func WithAudit(a domain.AuditStore) SyncOption {
	return func(s *SyncService) { s.audit = a }
}

// WithEvents publishes a sync_completed event per committed run.
func WithEvents(p domain.EventPublisher) SyncOption {
	return func(s *SyncService) { s.events = p }
}

// WithArchiver archives the report of every committed run.
func WithArchiver(a Archiver) SyncOption {
	return func(s *SyncService) { s.archiver = a }
}

// WithNotifier sends alerts on authentication, run and settings failures.
func WithNotifier(n Notifier) SyncOption {
	return func(s *SyncService) { s.notifier = n }
}

// WithRecorder reports run metrics.
func WithRecorder(r RunRecorder) SyncOption {
	return func(s *SyncService) { s.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// SyncService runs one synchronization for one user:
//
//	Start -> TokenReady -> PositionsFetched -> OrdersFetched ->
//	SnapshotsBuilt -> Reconciled -> SettingsUpdated -> Done
//
// Any fatal failure ends the run with a *domain.SyncError naming the last
// state reached. The service does not serialize runs for the same user;
// callers hold a lock when they need that.
type SyncService struct {
	SyncDeps

	audit        domain.AuditStore
	events       domain.EventPublisher
	archiver     Archiver
	notifier     Notifier
	recorder     RunRecorder
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewSyncService creates a SyncService. storeTimeout bounds each
// side-channel write.
func NewSyncService(deps SyncDeps, storeTimeout time.Duration, logger *slog.Logger, opts ...SyncOption) *SyncService {
	s := &SyncService{
		SyncDeps:     deps,
		storeTimeout: storeTimeout,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "sync_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run synchronizes userID and returns the run payload. A settings write
// failure after the ledger commits is not fatal: the result has outcome
// partial and SettingsError set.
func (s *SyncService) Run(ctx context.Context, userID string) (domain.SyncResult, error) {
	start := s.now()
	runID := uuid.NewString()
	log := s.logger.With(slog.String("user_id", userID), slog.String("run_id", runID))

	res, err := s.run(ctx, log, runID, userID)
	if err != nil {
		s.recordFailure(ctx, log, userID, runID, err, s.now().Sub(start))
		return domain.SyncResult{}, err
	}
	s.recordSuccess(ctx, log, res, s.now().Sub(start))
	return res, nil
}

func (s *SyncService) run(ctx context.Context, log *slog.Logger, runID, userID string) (domain.SyncResult, error) {
	stage := domain.StageStart
	fail := func(err error) error {
		return &domain.SyncError{Stage: stage, Err: err}
	}

	if userID == "" {
		return domain.SyncResult{}, fail(fmt.Errorf("sync_service: empty user id: %w", domain.ErrInvalidInput))
	}

	cred, err := s.Tokens.Credential(ctx, userID)
	if err != nil {
		return domain.SyncResult{}, fail(err)
	}
	token, err := s.Tokens.EnsureToken(ctx, cred)
	if err != nil {
		return domain.SyncResult{}, fail(err)
	}
	stage = domain.StageTokenReady
	log.DebugContext(ctx, "sync_service: token ready", slog.String("account", shortHash(cred.AccountHash)))

	// Positions and orders are fetched concurrently. Only the positions
	// fetch can fail the run; the order queries degrade per status.
	var (
		account domain.AccountSnapshot
		orders  OrderFetch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.Broker.GetAccount(gctx, token, cred.AccountHash)
		if err != nil {
			return fmt.Errorf("sync_service: fetch positions: %w", err)
		}
		account = a
		return nil
	})
	g.Go(func() error {
		orders = s.Orders.FetchWorkingOrders(gctx, cred.AccountHash, token)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.SyncResult{}, fail(err)
	}
	// Positions and orders both arrived; PositionsFetched is passed through.
	stage = domain.StageOrdersFetched
	log.DebugContext(ctx, "sync_service: broker data fetched",
		slog.Int("positions", len(account.Positions)),
		slog.Int("stops", len(orders.Orders)),
	)

	snaps, total, warnings := s.Builder.BuildAll(account.Positions, orders.Orders)
	stage = domain.StageSnapshotsBuilt
	for _, w := range warnings {
		log.WarnContext(ctx, "sync_service: data quality", slog.String("warning", w))
	}

	syncedAt := s.now().UTC()
	changes, err := s.Reconciler.Reconcile(ctx, userID, snaps, syncedAt)
	if err != nil {
		return domain.SyncResult{}, fail(err)
	}
	stage = domain.StageReconciled

	res := domain.SyncResult{
		RunID:         runID,
		UserID:        userID,
		Outcome:       domain.SyncOutcomeSuccess,
		Snapshots:     snaps,
		TotalRisk:     total,
		AccountValue:  account.Balances.LiquidationValue,
		Equity:        account.Balances.Equity,
		CashBalance:   account.Balances.CashBalance,
		SyncedAt:      syncedAt,
		Changes:       changes,
		Warnings:      warnings,
		DegradedOrder: orders.Degraded,
	}
	if res.Snapshots == nil {
		res.Snapshots = []domain.RiskSnapshot{}
	}

	if err := s.Settings.ApplyAccountValue(ctx, userID, account.Balances, syncedAt); err != nil {
		res.Outcome = domain.SyncOutcomePartial
		res.SettingsError = err.Error()
		s.notify(ctx, log, notifySettingsWrite, "Settings write failed",
			fmt.Sprintf("user %s: ledger committed, settings not updated: %v", userID, err))
	}
	return res, nil
}

func (s *SyncService) recordSuccess(ctx context.Context, log *slog.Logger, res domain.SyncResult, d time.Duration) {
	if s.recorder != nil {
		s.recorder.RunFinished(string(res.Outcome), d)
		s.recorder.LedgerCommitted(res.Changes, res.SyncedAt)
	}

	s.auditLog(ctx, log, res.UserID, "sync_completed", map[string]any{
		"run_id":     res.RunID,
		"outcome":    string(res.Outcome),
		"created":    res.Changes.Created,
		"updated":    res.Changes.Updated,
		"deleted":    res.Changes.Deleted,
		"total_risk": res.TotalRisk.String(),
	})

	if s.events != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "sync_completed",
			"user_id":    res.UserID,
			"run_id":     res.RunID,
			"created":    res.Changes.Created,
			"updated":    res.Changes.Updated,
			"deleted":    res.Changes.Deleted,
			"total_risk": res.TotalRisk.String(),
		})
		pctx, cancel := s.sideContext(ctx)
		if err := s.events.Publish(pctx, EventsChannel, evt); err != nil {
			log.WarnContext(ctx, "sync_service: publish event failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	if s.archiver != nil {
		actx, cancel := s.sideContext(ctx)
		if key, err := s.archiver.Archive(actx, res); err != nil {
			log.WarnContext(ctx, "sync_service: archive report failed", slog.String("error", err.Error()))
		} else {
			log.DebugContext(ctx, "sync_service: report archived", slog.String("key", key))
		}
		cancel()
	}

	log.InfoContext(ctx, "sync_service: run completed",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("snapshots", len(res.Snapshots)),
		slog.Int("created", res.Changes.Created),
		slog.Int("updated", res.Changes.Updated),
		slog.Int("deleted", res.Changes.Deleted),
		slog.String("total_risk", res.TotalRisk.StringFixed(2)),
		slog.Int("degraded_statuses", len(res.DegradedOrder)),
		slog.Duration("elapsed", d),
	)
}

func (s *SyncService) recordFailure(ctx context.Context, log *slog.Logger, userID, runID string, err error, d time.Duration) {
	code := domain.ErrorCode(err)
	stage := domain.StageStart
	var se *domain.SyncError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	if s.recorder != nil {
		s.recorder.RunFinished(code, d)
	}

	log.ErrorContext(ctx, "sync_service: run failed",
		slog.String("stage", string(stage)),
		slog.String("code", code),
		slog.String("error", err.Error()),
		slog.Duration("elapsed", d),
	)

	// A user without a linked account has nothing worth auditing.
	if errors.Is(err, domain.ErrNotLinked) || errors.Is(err, domain.ErrInvalidInput) {
		return
	}

	s.auditLog(ctx, log, userID, "sync_failed", map[string]any{
		"run_id": runID,
		"stage":  string(stage),
		"code":   code,
		"error":  err.Error(),
	})

	if errors.Is(err, domain.ErrAuthExpired) {
		s.notify(ctx, log, notifyAuthExpired, "Broker re-authentication required",
			fmt.Sprintf("user %s: %v", userID, err))
		return
	}
	s.notify(ctx, log, notifySyncFailed, "Sync failed",
		fmt.Sprintf("user %s: failed after %s: %v", userID, stage, err))
}

func (s *SyncService) auditLog(ctx context.Context, log *slog.Logger, userID, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	actx, cancel := s.sideContext(ctx)
	defer cancel()
	if err := s.audit.Log(actx, userID, event, detail); err != nil {
		log.WarnContext(ctx, "sync_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SyncService) notify(ctx context.Context, log *slog.Logger, event, title, message string) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := s.sideContext(ctx)
	defer cancel()
	if err := s.notifier.Notify(nctx, event, title, message); err != nil {
		log.WarnContext(ctx, "sync_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// sideContext detaches side-channel writes from the caller's cancellation
// so a finished run is still recorded, bounded by the store timeout.
func (s *SyncService) sideContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

// shortHash truncates an account hash for logging.
func shortHash(h string) string {
	if len(h) <= 6 {
		return h
	}
	return h[:6] + "..."
}
