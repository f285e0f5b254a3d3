// Package metrics exposes Prometheus instrumentation for the stock service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stock"

// Metrics holds the collectors registered by the service.
// Each instance owns its registry so tests never collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	MovementsCreated    *prometheus.CounterVec
	MovementTransitions *prometheus.CounterVec
	InsufficientStock   *prometheus.CounterVec
	Discrepancies       prometheus.Counter
	Allocations         *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		MovementsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_created_total",
			Help:      "Movements created, by movement kind.",
		}, []string{"kind"}),
		MovementTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movement_transitions_total",
			Help:      "Movement state transitions.",
		}, []string{"from", "to"}),
		InsufficientStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_total",
			Help:      "Decrements rejected for insufficient stock, by warehouse kind.",
		}, []string{"kind"}),
		Discrepancies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discrepancies_total",
			Help:      "Discrepancy records written during receiving.",
		}),
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_allocations_total",
			Help:      "Per-destination distribution outcomes.",
		}, []string{"strategy", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.MovementsCreated,
		m.MovementTransitions,
		m.InsufficientStock,
		m.Discrepancies,
		m.Allocations,
		m.RequestDuration,
	)

	return m
}

// Registry returns the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The recorder methods are nil-safe so services can run without metrics.

func (m *Metrics) MovementCreated(kind string) {
	if m == nil {
		return
	}
	m.MovementsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.MovementTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Insufficient(kind string) {
	if m == nil {
		return
	}
	m.InsufficientStock.WithLabelValues(kind).Inc()
}

func (m *Metrics) DiscrepanciesRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Discrepancies.Add(float64(n))
}

func (m *Metrics) Allocation(strategy string, ok bool) {
	if m == nil {
		return
	}
	outcome := "allocated"
	if !ok {
		outcome = "failed"
	}
	m.Allocations.WithLabelValues(strategy, outcome).Inc()
}

// Middleware records request latency labelled by the chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
