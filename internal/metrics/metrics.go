// Package metrics provides Prometheus instrumentation for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

var (
	// SyncRunsTotal counts finished sync runs by outcome: success, partial,
	// or the failure class.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesync_sync_runs_total",
		Help: "Total synchronization runs by outcome",
	}, []string{"outcome"})

	// SyncDuration tracks end-to-end run latency.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradesync_sync_duration_seconds",
		Help:    "Synchronization run duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// LedgerOpsTotal counts committed ledger operations by kind.
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesync_ledger_ops_total",
		Help: "Committed trade ledger operations",
	}, []string{"op"})

	// BrokerRequestDuration tracks broker API latency by endpoint and status.
	BrokerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradesync_broker_request_duration_seconds",
		Help:    "Broker API request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint", "status"})

	// LastSyncTimestamp is the unix time of the last committed run.
	LastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradesync_last_sync_timestamp_seconds",
		Help: "Unix timestamp of the last successful synchronization",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesync_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradesync_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
)

// Recorder writes sync service events to the package-level collectors.
type Recorder struct{}

// RunFinished records a run outcome and its duration.
func (Recorder) RunFinished(outcome string, d time.Duration) {
	SyncRunsTotal.WithLabelValues(outcome).Inc()
	SyncDuration.Observe(d.Seconds())
}

// LedgerCommitted records the operation counts of a committed batch.
func (Recorder) LedgerCommitted(c domain.LedgerChanges, at time.Time) {
	LedgerOpsTotal.WithLabelValues("create").Add(float64(c.Created))
	LedgerOpsTotal.WithLabelValues("update").Add(float64(c.Updated))
	LedgerOpsTotal.WithLabelValues("delete").Add(float64(c.Deleted))
	LastSyncTimestamp.Set(float64(at.Unix()))
}

// ObserveBroker matches the broker client's latency hook.
func ObserveBroker(endpoint string, status int, d time.Duration) {
	BrokerRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// The mux pattern keeps user IDs out of the label set.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
