// Package metrics registers the process's Prometheus collectors and the chi
// middleware that records HTTP traffic. Collectors are package-level so that
// constructing several routers (as tests do) never registers twice.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Ledger metrics
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger-mutating operations by outcome",
		},
		[]string{"operation", "result"}, // create_campaign, fund, release, deposit; ok, rejected, error
	)
	LedgerDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconciliation_drift_campaigns",
		Help: "Campaigns whose balances failed the last reconciliation run",
	})

	// Attribution metrics
	AttributionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_events_total",
			Help: "Attribution events recorded",
		},
		[]string{"type", "source"},
	)
	DuplicatePurchases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attribution_duplicate_purchases_total",
		Help: "Purchase events ignored because the order was already attributed",
	})

	// Lift test metrics
	LiftGroupEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lift_group_events_total",
			Help: "Counter increments applied to lift test groups",
		},
		[]string{"group", "event"},
	)

	// Integration metrics
	IntegrationForwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_forwards_total",
			Help: "Purchase events forwarded to brand integrations",
		},
		[]string{"provider", "result"}, // ok, failed, skipped
	)

	// Task metrics
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_processed_total",
			Help: "Background tasks by type and outcome",
		},
		[]string{"type", "result"}, // ok, retry, failed
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)
)

// RecordLedgerOp counts a ledger operation. A nil error is "ok"; a
// non-internal failure is "rejected".
func RecordLedgerOp(operation string, err error, rejected bool) {
	result := "ok"
	switch {
	case err != nil && rejected:
		result = "rejected"
	case err != nil:
		result = "error"
	}
	LedgerOperations.WithLabelValues(operation, result).Inc()
}

// RecordTask counts a task outcome.
func RecordTask(taskType, result string) {
	TasksProcessed.WithLabelValues(taskType, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the chi route
// pattern rather than the raw path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}
