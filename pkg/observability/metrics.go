package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Service token metrics
	TokenRefreshesTotal *prometheus.CounterVec
	TokenCacheHitsTotal prometheus.Counter

	// Backend call metrics (report store / identity store)
	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec

	// Provisioning metrics
	ProvisioningTotal         *prometheus.CounterVec
	CompensationsTotal        *prometheus.CounterVec
	CompensationFailuresTotal prometheus.Counter

	// Permission batch metrics
	BatchItemsTotal *prometheus.CounterVec
	BatchesTotal    *prometheus.CounterVec

	// Permission snapshot cache metrics
	SnapshotCacheHitsTotal   prometheus.Counter
	SnapshotCacheMissesTotal prometheus.Counter

	// Orphan sweep metrics
	SweepRunsTotal       *prometheus.CounterVec
	OrphansDetectedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_token_refreshes_total",
				Help: "Total number of service token refresh attempts",
			},
			[]string{"status"},
		),
		TokenCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "permsync_token_cache_hits_total",
				Help: "Total number of service token cache hits",
			},
		),

		BackendCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_backend_calls_total",
				Help: "Total number of backend calls",
			},
			[]string{"backend", "operation", "status"},
		),
		BackendCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permsync_backend_call_duration_seconds",
				Help:    "Backend call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),

		ProvisioningTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_provisioning_operations_total",
				Help: "Total number of provisioning operations",
			},
			[]string{"operation", "stage", "status"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_compensations_total",
				Help: "Total number of compensating actions executed",
			},
			[]string{"step", "status"},
		),
		CompensationFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "permsync_compensation_failures_total",
				Help: "Total number of failed compensating actions (operator-visible inconsistencies)",
			},
		),

		BatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_permission_batch_items_total",
				Help: "Total number of permission batch items processed",
			},
			[]string{"action", "status"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_permission_batches_total",
				Help: "Total number of permission batches by aggregate outcome",
			},
			[]string{"action", "outcome"},
		),

		SnapshotCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "permsync_snapshot_cache_hits_total",
				Help: "Total number of permission snapshot cache hits",
			},
		),
		SnapshotCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "permsync_snapshot_cache_misses_total",
				Help: "Total number of permission snapshot cache misses",
			},
		),

		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_sweep_runs_total",
				Help: "Total number of orphan sweep runs",
			},
			[]string{"status"},
		),
		OrphansDetectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permsync_orphans_detected_total",
				Help: "Total number of orphaned accounts detected by the sweep",
			},
			[]string{"backend"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TokenRefreshesTotal,
		m.TokenCacheHitsTotal,
		m.BackendCallsTotal,
		m.BackendCallDuration,
		m.ProvisioningTotal,
		m.CompensationsTotal,
		m.CompensationFailuresTotal,
		m.BatchItemsTotal,
		m.BatchesTotal,
		m.SnapshotCacheHitsTotal,
		m.SnapshotCacheMissesTotal,
		m.SweepRunsTotal,
		m.OrphansDetectedTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// ObserveBackendCall records a backend call outcome with its duration
func (m *Metrics) ObserveBackendCall(backend, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.BackendCallsTotal.WithLabelValues(backend, operation, status).Inc()
	m.BackendCallDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
