package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// TradesHandler serves the trade ledger and audit log of a user.
type TradesHandler struct {
	ledger domain.TradeLedger
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewTradesHandler creates a TradesHandler.
func NewTradesHandler(ledger domain.TradeLedger, audit domain.AuditStore, logger *slog.Logger) *TradesHandler {
	return &TradesHandler{ledger: ledger, audit: audit, logger: logHandler(logger, "trades")}
}

type listTradesResponse struct {
	Trades []domain.PersistedTrade `json:"trades"`
}

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

type listAuditResponse struct {
	Entries []auditEntryResponse `json:"entries"`
}

// ListSynced returns the user's synced ACTIVE trades.
// GET /api/users/{userID}/trades
func (h *TradesHandler) ListSynced(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")

	trades, err := h.ledger.ListSynced(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.PersistedTrade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// ListAudit returns the user's audit entries, newest first.
// GET /api/users/{userID}/audit?limit=&offset=
func (h *TradesHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")

	entries, err := h.audit.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	out := listAuditResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
