package observability

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

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
)

// Metrics holds the Prometheus instruments served at /metrics. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	GuardDecisions       *prometheus.CounterVec
	GuardSuspicious      *prometheus.CounterVec
	ValidationRejections *prometheus.CounterVec
	AuthVerifications    *prometheus.CounterVec
	SecuritySinkFailures *prometheus.CounterVec
	RequestsTotal        *prometheus.CounterVec
	RequestSeconds       *prometheus.HistogramVec
}

var _ guard.Observer = (*Metrics)(nil)

// NewMetrics registers every instrument under namespace, plus the Go runtime and process
// collectors.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Rate limiter decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		GuardSuspicious: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_suspicious_total",
				Help:      "Suspicious activity signals raised by the rate limiter",
			},
			[]string{"action"},
		),
		ValidationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_rejections_total",
				Help:      "Rejected submissions by offending field",
			},
			[]string{"field"},
		),
		AuthVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_verifications_total",
				Help:      "Token verification outcomes",
			},
			[]string{"kind", "result", "reason"},
		),
		SecuritySinkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_sink_failures_total",
				Help:      "Security event fan-out failures by sink",
			},
			[]string{"sink"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveDecision counts a rate limiter decision.
func (m *Metrics) ObserveDecision(action string, decision guard.Decision) {
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "rejected"
	}
	m.GuardDecisions.WithLabelValues(action, outcome).Inc()
}

// ObserveSuspicious counts a suspicious activity signal.
func (m *Metrics) ObserveSuspicious(action string) {
	m.GuardSuspicious.WithLabelValues(action).Inc()
}

// ObserveValidationRejected counts a rejected submission. An empty field is recorded as "request".
func (m *Metrics) ObserveValidationRejected(field string) {
	if field == "" {
		field = "request"
	}
	m.ValidationRejections.WithLabelValues(field).Inc()
}

// ObserveSinkFailure counts a failed security event sink.
func (m *Metrics) ObserveSinkFailure(sink string) {
	m.SecuritySinkFailures.WithLabelValues(sink).Inc()
}

// RecordVerification satisfies auth.MetricsRecorder.
func (m *Metrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.AuthVerifications.WithLabelValues(kind, result, reason).Inc()
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = SanitizeRoute(rctx.RoutePattern())
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
