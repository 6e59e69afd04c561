// Package metrics exposes cycle and I/O counters for the bridge as
// Prometheus collectors. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvpbridge"

// I/O operation label values.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// Metrics holds the bridge collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	ioErrors      *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	ioDuration    *prometheus.HistogramVec
	connected     prometheus.Gauge
	diagDropped   prometheus.Counter
	abandoned     *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed read/write cycles.",
		}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_errors_total",
			Help:      "Per-cycle remote I/O failures by operation.",
		}, []string{"op"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time the control thread spent blocked in Read.",
			Buckets:   []float64{.001, .002, .004, .008, .012, .016, .024, .032, .050, .100, .250, .500},
		}),
		ioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "io_duration_seconds",
			Help:      "Remote variable request latency by operation.",
			Buckets:   []float64{.001, .002, .004, .008, .012, .016, .024, .032, .050, .100, .250, .500},
		}, []string{"op"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while both remote connections are open.",
		}),
		diagDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_dropped_total",
			Help:      "Status messages dropped because the diagnostics buffer was full.",
		}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_requests_total",
			Help:      "Remote requests left running after a timeout or disconnect.",
		}, []string{"op"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abandoned_requests_running",
			Help:      "Abandoned remote requests that have not returned yet.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.cycles,
		m.ioErrors,
		m.cycleDuration,
		m.ioDuration,
		m.connected,
		m.diagDropped,
		m.abandoned,
		m.inFlight,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ObserveIO records one remote request and whether it failed.
func (m *Metrics) ObserveIO(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ioDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.ioErrors.WithLabelValues(op).Inc()
	}
}

// SetConnected flips the connected gauge.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// DiagnosticDropped counts one dropped status message.
func (m *Metrics) DiagnosticDropped() {
	if m == nil {
		return
	}
	m.diagDropped.Inc()
}

// RequestAbandoned counts a request the caller stopped waiting for. The
// returned func marks it as having finished and must be called once.
func (m *Metrics) RequestAbandoned(op string) (returned func()) {
	if m == nil {
		return func() {}
	}
	m.abandoned.WithLabelValues(op).Inc()
	g := m.inFlight.WithLabelValues(op)
	g.Inc()
	return g.Dec
}
