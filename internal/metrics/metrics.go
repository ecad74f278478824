// Package metrics exposes Prometheus collectors for chain execution and
// chain mutations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

const namespace = "bypassd"

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RunsTotal      *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	StepFailures   *prometheus.CounterVec
	MutationsTotal *prometheus.CounterVec
	ModulesLoaded  prometheus.Gauge
}

// NewMetrics creates all collectors on a private registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Chain and single-bypass executions by outcome",
		},
		[]string{"kind", "result"},
	)

	m.StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of a single bypass step in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"category", "name"},
	)

	m.StepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed bypass steps by error class",
		},
		[]string{"category", "name", "class"},
	)

	m.MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_mutations_total",
			Help:      "Chain mutations by operation and outcome",
		},
		[]string{"op", "result"},
	)

	m.ModulesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modules_loaded",
			Help:      "Number of bypass modules in the active registry",
		},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RunsTotal,
		m.StepDuration,
		m.StepFailures,
		m.MutationsTotal,
		m.ModulesLoaded,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStep records the duration of one step and, on failure, its class.
func (m *Metrics) ObserveStep(category, name string, d time.Duration, err error) {
	m.StepDuration.WithLabelValues(category, name).Observe(d.Seconds())
	if err != nil {
		m.StepFailures.WithLabelValues(category, name, string(domain.Classify(err))).Inc()
	}
}

// ObserveRun counts a chain or single-bypass execution.
func (m *Metrics) ObserveRun(kind string, err error) {
	m.RunsTotal.WithLabelValues(kind, result(err)).Inc()
}

// ObserveMutation counts a chain mutation.
func (m *Metrics) ObserveMutation(op string, err error) {
	m.MutationsTotal.WithLabelValues(op, result(err)).Inc()
}

// SetModules records the size of the active registry.
func (m *Metrics) SetModules(n int) {
	m.ModulesLoaded.Set(float64(n))
}

// ObserveRequest records one HTTP request. route is the matched route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
