package observability

import (
	"database/sql"
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
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal     *prometheus.CounterVec
	AuthzResolutionDuration *prometheus.HistogramVec
	AuthzTraversalDepth     prometheus.Histogram

	// Decision cache metrics
	DecisionCacheHitsTotal          prometheus.Counter
	DecisionCacheMissesTotal        prometheus.Counter
	DecisionCacheInvalidationsTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	// Business metrics
	GrantsTotal                prometheus.Gauge
	EphemeralMembershipsActive prometheus.Gauge
	CollaborativesTotal        prometheus.Gauge
	PendingInvitationsTotal    prometheus.Gauge
	APITokensActive            prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantbase_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantbase_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantbase_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantbase_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Authorization metrics. The path label records which rung of the
		// resolution chain produced the decision.
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantbase_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"verb", "entity_kind", "outcome", "path"},
		),
		AuthzResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantbase_authz_resolution_duration_seconds",
				Help:    "Authorization resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"verb"},
		),
		AuthzTraversalDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grantbase_authz_traversal_depth",
				Help:    "Relationship graph depth reached during resolution",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),

		// Decision cache metrics
		DecisionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grantbase_decision_cache_hits_total",
				Help: "Total number of decision cache hits",
			},
		),
		DecisionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grantbase_decision_cache_misses_total",
				Help: "Total number of decision cache misses",
			},
		),
		DecisionCacheInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grantbase_decision_cache_invalidations_total",
				Help: "Total number of decision cache invalidations",
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantbase_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantbase_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		// Business metrics
		GrantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_permission_grants_total",
				Help: "Total number of permission grants",
			},
		),
		EphemeralMembershipsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_ephemeral_memberships_active",
				Help: "Number of unexpired ephemeral group memberships",
			},
		),
		CollaborativesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_funder_collaboratives_total",
				Help: "Total number of funder collaboratives",
			},
		),
		PendingInvitationsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_pending_invitations_total",
				Help: "Number of pending collaborative invitations",
			},
		),
		APITokensActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantbase_api_tokens_active",
				Help: "Number of active API tokens",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthzResolutionDuration,
		m.AuthzTraversalDepth,
		m.DecisionCacheHitsTotal,
		m.DecisionCacheMissesTotal,
		m.DecisionCacheInvalidationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.GrantsTotal,
		m.EphemeralMembershipsActive,
		m.CollaborativesTotal,
		m.PendingInvitationsTotal,
		m.APITokensActive,
	)

	return m
}

// ObserveAuthzDecision records one authorization decision. path names the
// rung of the resolution chain that settled it.
func (m *Metrics) ObserveAuthzDecision(verb, entityKind string, allowed bool, path string, depth int, elapsed time.Duration) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(verb, entityKind, outcome, path).Inc()
	m.AuthzResolutionDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
	m.AuthzTraversalDepth.Observe(float64(depth))
}

// EntityCounts is a point-in-time tally of the business objects exported
// as gauges.
type EntityCounts struct {
	Grants             int64
	ActiveMemberships  int64
	Collaboratives     int64
	PendingInvitations int64
	ActiveTokens       int64
}

// UpdateEntityCounts copies business object tallies into their gauges.
// Callers run it on a ticker.
func (m *Metrics) UpdateEntityCounts(counts EntityCounts) {
	m.GrantsTotal.Set(float64(counts.Grants))
	m.EphemeralMembershipsActive.Set(float64(counts.ActiveMemberships))
	m.CollaborativesTotal.Set(float64(counts.Collaboratives))
	m.PendingInvitationsTotal.Set(float64(counts.PendingInvitations))
	m.APITokensActive.Set(float64(counts.ActiveTokens))
}

// UpdateDBStats copies sql.DB pool statistics into the database gauges.
// Callers run it on a ticker.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
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

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
