package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zijian-Wang/tradesync/internal/domain"
	"github.com/Zijian-Wang/tradesync/internal/server/handler"
	"github.com/Zijian-Wang/tradesync/internal/store/memory"
)

type stubRunner struct{ calls int }

func (s *stubRunner) Run(_ context.Context, userID string) (domain.SyncResult, error) {
	s.calls++
	return domain.SyncResult{RunID: "r", UserID: userID, Outcome: domain.SyncOutcomeSuccess}, nil
}

func newTestHandler(t *testing.T, apiKey string) (http.Handler, *stubRunner) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	runner := &stubRunner{}
	h := NewHandler(Config{APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler(nil, logger),
		Sync:   handler.NewSyncHandler(runner, handler.SyncLock{}, logger),
		Trades: handler.NewTradesHandler(st, st, logger),
	}, nil, logger)
	return h, runner
}

func TestRoutes(t *testing.T) {
	h, runner := newTestHandler(t, "")

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/sync/u1", http.StatusOK},
		{http.MethodGet, "/api/users/u1/trades", http.StatusOK},
		{http.MethodGet, "/api/users/u1/audit", http.StatusOK},
		{http.MethodGet, "/api/sync/u1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
	assert.Equal(t, 1, runner.calls)
}

func TestAuthProtectsSyncButNotHealth(t *testing.T) {
	h, runner := newTestHandler(t, "k")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/u1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/u1", nil)
	req.Header.Set("Authorization", "Bearer k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
}
