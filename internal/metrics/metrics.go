// Package metrics holds the Prometheus collectors for the unit cache and the
// background scheduler.
//
// Collectors are registered on an injected prometheus.Registerer so tests and
// embedders can keep them off the global registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cxxnav"

// Parse outcomes recorded in ParsesTotal.
const (
	ResultCreate      = "create"
	ResultReparse     = "reparse"
	ResultHit         = "hit"
	ResultUnparseable = "unparseable"
	ResultError       = "error"
)

// Reasons an enqueue request is dropped.
const (
	DropUpToDate   = "up_to_date"
	DropLocked     = "locked"
	DropDuplicate  = "duplicate"
	DropTerminated = "terminated"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// ParsesTotal counts cache lookups by outcome.
	// Labels: result (create, reparse, hit, unparseable, error)
	ParsesTotal *prometheus.CounterVec

	// ParseDuration measures backend parse and reparse time.
	// Labels: kind (create, reparse)
	ParseDuration *prometheus.HistogramVec

	// CachedUnits is the number of units held by the cache.
	CachedUnits prometheus.Gauge

	// Invalidations counts staleness resets.
	// Labels: scope (all, file)
	Invalidations *prometheus.CounterVec

	// QueueDepth is the number of pending background requests.
	// Labels: priority (high, low)
	QueueDepth *prometheus.GaugeVec

	// EnqueueDropped counts enqueue requests that were not queued.
	// Labels: reason (up_to_date, locked, duplicate, terminated)
	EnqueueDropped *prometheus.CounterVec

	// WorkerPanics counts recovered panics in background workers.
	WorkerPanics prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg gets a
// private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ParsesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "parses_total",
			Help:      "Translation unit lookups by outcome.",
		}, []string{"result"}),
		ParseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "parse_duration_seconds",
			Help:      "Time spent in the parsing backend.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"kind"}),
		CachedUnits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "units",
			Help:      "Translation units held by the cache.",
		}),
		Invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Staleness resets by scope.",
		}, []string{"scope"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Pending background parse requests.",
		}, []string{"priority"}),
		EnqueueDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "enqueue_dropped_total",
			Help:      "Enqueue requests that were not queued, by reason.",
		}, []string{"reason"}),
		WorkerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "worker_panics_total",
			Help:      "Recovered panics in background workers.",
		}),
	}
}

// Parse records one cache lookup outcome.
func (m *Metrics) Parse(result string) {
	if m == nil {
		return
	}
	m.ParsesTotal.WithLabelValues(result).Inc()
}

// ObserveParse records backend time for kind (create or reparse).
func (m *Metrics) ObserveParse(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.ParseDuration.WithLabelValues(kind).Observe(seconds)
}

// SetUnits records the cache size.
func (m *Metrics) SetUnits(n int) {
	if m == nil {
		return
	}
	m.CachedUnits.Set(float64(n))
}

// Invalidate records a staleness reset; scope is "all" or "file".
func (m *Metrics) Invalidate(scope string) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(scope).Inc()
}

// QueueAdd moves the queue depth gauge for a priority label.
func (m *Metrics) QueueAdd(priority string, delta float64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(priority).Add(delta)
}

// Dropped records a dropped enqueue.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.EnqueueDropped.WithLabelValues(reason).Inc()
}

// Panic records a recovered worker panic.
func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.WorkerPanics.Inc()
}
