package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// SyncRunner runs one synchronization for a user.
type SyncRunner interface {
	Run(ctx context.Context, userID string) (domain.SyncResult, error)
}

// SyncLock is the per-user lock taken around a run. Locks may be nil, in
// which case concurrent runs for one user are not prevented.
type SyncLock struct {
	Locks domain.LockManager
	Key   func(userID string) string
	TTL   time.Duration
}

// SyncHandler serves the synchronization endpoint.
type SyncHandler struct {
	runner SyncRunner
	lock   SyncLock
	logger *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(runner SyncRunner, lock SyncLock, logger *slog.Logger) *SyncHandler {
	if lock.Key == nil {
		lock.Key = func(userID string) string { return "sync:" + userID }
	}
	return &SyncHandler{runner: runner, lock: lock, logger: logHandler(logger, "sync")}
}

// Sync runs one synchronization and returns the run payload.
// POST /api/sync/{userID}
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")
	if userID == "" {
		writeDomainError(w, domain.ErrInvalidInput)
		return
	}

	if h.lock.Locks != nil {
		unlock, err := h.lock.Locks.Acquire(r.Context(), h.lock.Key(userID), h.lock.TTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				h.logger.ErrorContext(r.Context(), "handler: acquire sync lock failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			writeDomainError(w, err)
			return
		}
		defer unlock()
	}

	res, err := h.runner.Run(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
