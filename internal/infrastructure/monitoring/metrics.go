package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Upstream labels
const (
	UpstreamImage       = "image"
	UpstreamRecommender = "recommender"
)

// Flow labels
const (
	FlowImage          = "image"
	FlowRecommendation = "recommendation"
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Upstream metrics
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	breakerState            *prometheus.GaugeVec
	breakerTransitions      *prometheus.CounterVec

	// Flow metrics
	flowOutcomes     *prometheus.CounterVec
	staleCompletions *prometheus.CounterVec
	knowledgeMatches *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on its own registry, so several
// collectors can coexist in one process.
func NewMetricsCollector(logger *zap.Logger) *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsCollector{
		logger:   logger.Named("metrics"),
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		upstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total number of calls to upstream endpoints",
			},
			[]string{"upstream", "provider", "status"},
		),
		upstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"upstream", "provider"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),

		flowOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_outcomes_total",
				Help: "Completed UI flows by outcome",
			},
			[]string{"flow", "outcome"},
		),
		staleCompletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flow_stale_completions_total",
				Help: "Completions discarded because a newer request superseded them",
			},
			[]string{"flow"},
		),
		knowledgeMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_lookups_total",
				Help: "Knowledge lookups by result",
			},
			[]string{"result"},
		),
	}
}

// HTTPMiddleware records request count and latency per chi route pattern
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// UpstreamRequest records one call to an upstream endpoint
func (m *MetricsCollector) UpstreamRequest(upstream, provider, status string, duration time.Duration) {
	m.upstreamRequestsTotal.WithLabelValues(upstream, provider, status).Inc()
	m.upstreamRequestDuration.WithLabelValues(upstream, provider).Observe(duration.Seconds())
}

// BreakerTransition records a circuit breaker state change
func (m *MetricsCollector) BreakerTransition(name, from, to string, state float64) {
	m.breakerState.WithLabelValues(name).Set(state)
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

// FlowOutcome records how a UI flow ended: "success", "error" or "rejected"
func (m *MetricsCollector) FlowOutcome(flow, outcome string) {
	m.flowOutcomes.WithLabelValues(flow, outcome).Inc()
}

// StaleCompletion records a discarded out-of-order completion
func (m *MetricsCollector) StaleCompletion(flow string) {
	m.staleCompletions.WithLabelValues(flow).Inc()
}

// KnowledgeLookup records whether a draft matched any knowledge entry
func (m *MetricsCollector) KnowledgeLookup(matched bool) {
	result := "fallback"
	if matched {
		result = "match"
	}
	m.knowledgeMatches.WithLabelValues(result).Inc()
}

// RegisterAssetGauge exposes the number of held assets, sampled on scrape
func (m *MetricsCollector) RegisterAssetGauge(count func(ctx context.Context) (int, error)) {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "assets_held",
			Help: "Number of generated images currently held",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := count(ctx)
			if err != nil {
				m.logger.Warn("Failed to count assets", zap.Error(err))
				return 0
			}
			return float64(n)
		},
	)
	if err := m.registry.Register(gauge); err != nil {
		m.logger.Warn("Asset gauge already registered", zap.Error(err))
	}
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
