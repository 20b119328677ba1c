package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotLinked      = errors.New("broker account not linked")
	ErrAuthExpired    = errors.New("broker authorization expired, re-authentication required")
	ErrRefreshFailed  = errors.New("broker token refresh failed")
	ErrUpstreamFetch  = errors.New("upstream fetch failed")
	ErrReconcileWrite = errors.New("ledger reconciliation write failed")
	ErrSettingsWrite  = errors.New("settings write failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("rate limited")
	ErrLockHeld       = errors.New("lock already held")
)

// SyncStage names the state a synchronization run was in when it stopped.
type SyncStage string

const (
	StageStart            SyncStage = "start"
	StageTokenReady       SyncStage = "token_ready"
	StagePositionsFetched SyncStage = "positions_fetched"
	StageOrdersFetched    SyncStage = "orders_fetched"
	StageSnapshotsBuilt   SyncStage = "snapshots_built"
	StageReconciled       SyncStage = "reconciled"
	StageSettingsUpdated  SyncStage = "settings_updated"
	StageDone             SyncStage = "done"
)

// SyncError is the terminal Failed(reason) of a run. Stage is the last state
// that was reached before the failing transition.
type SyncError struct {
	Stage SyncStage
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed after %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// RefreshError reports a failed token refresh. It matches both
// ErrRefreshFailed and ErrAuthExpired so callers can treat it as a
// re-authentication condition.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return ErrRefreshFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrRefreshFailed.Error(), e.Err)
}

func (e *RefreshError) Unwrap() []error {
	errs := []error{ErrRefreshFailed, ErrAuthExpired}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// maxUpstreamBody bounds how much of an upstream response body is retained
// for diagnostics.
const maxUpstreamBody = 512

// UpstreamError captures a non-success broker response. Body is truncated and
// never includes request headers.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// NewUpstreamError builds an UpstreamError, truncating body.
func NewUpstreamError(endpoint string, status int, body []byte) *UpstreamError {
	b := string(body)
	if len(b) > maxUpstreamBody {
		b = b[:maxUpstreamBody] + "..."
	}
	return &UpstreamError{Endpoint: endpoint, StatusCode: status, Body: b}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamFetch }

// ErrorCode returns a stable machine-readable code for err. RefreshFailed is
// checked ahead of AuthExpired because a RefreshError matches both.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotLinked):
		return "not_linked"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrUpstreamFetch):
		return "upstream_fetch_failed"
	case errors.Is(err, ErrReconcileWrite):
		return "reconcile_write_failed"
	case errors.Is(err, ErrSettingsWrite):
		return "settings_write_failed"
	case errors.Is(err, ErrLockHeld):
		return "sync_in_progress"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
