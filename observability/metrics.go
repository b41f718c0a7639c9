package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters tracking the sale engine's externally visible
// activity plus per-route HTTP instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	Bookings         prometheus.Counter
	Settlements      prometheus.Counter
	Refunds          prometheus.Counter
	ExternalFailures prometheus.Counter

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewMetrics builds an isolated registry so tests can instantiate metrics
// without global registration conflicts.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokensale"
	}
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		Bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Count of accepted booking requests.",
		}),
		Settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Count of investors settled to the treasury.",
		}),
		Refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Count of completed escrow refunds.",
		}),
		ExternalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      "Count of failed funds-ledger or asset-store calls.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests processed by the RPC server.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	registry.MustRegister(m.Bookings, m.Settlements, m.Refunds, m.ExternalFailures, m.requests, m.durations)
	return m
}

// Middleware instruments a route with request counts and latency histograms.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
