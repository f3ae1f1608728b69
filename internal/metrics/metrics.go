// Package metrics exposes Prometheus counters for the simulation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation runner. A nil
// *Metrics is valid and turns every method into a no-op.
type Metrics struct {
	SignalsSeen      prometheus.Counter
	SignalsAccepted  prometheus.Counter
	SignalsRejected  *prometheus.CounterVec // label: reason
	PositionsOpened  prometheus.Counter
	PositionsClosed  *prometheus.CounterVec // label: reason
	OpenPositions    prometheus.Gauge
	PriceFetchErrors prometheus.Counter
	SnapshotSaves    prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		SignalsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_signals_seen_total",
			Help: "Signals observed from the detection pipeline.",
		}),
		SignalsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_signals_accepted_total",
			Help: "Signals that passed the entry policy and opened a position.",
		}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_signals_rejected_total",
			Help: "Signals rejected by the entry policy.",
		}, []string{"reason"}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_positions_opened_total",
			Help: "Simulated positions opened.",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_positions_closed_total",
			Help: "Simulated positions closed.",
		}, []string{"reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_open_positions",
			Help: "Currently open simulated positions.",
		}),
		PriceFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_price_fetch_errors_total",
			Help: "Price-feed fetch failures (recovered on the next tick).",
		}),
		SnapshotSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_snapshot_saves_total",
			Help: "Daily snapshot writes.",
		}),
		registry: reg,
	}
	reg.MustRegister(
		m.SignalsSeen, m.SignalsAccepted, m.SignalsRejected,
		m.PositionsOpened, m.PositionsClosed, m.OpenPositions,
		m.PriceFetchErrors, m.SnapshotSaves,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SignalSeen increments the seen counter.
func (m *Metrics) SignalSeen() {
	if m != nil {
		m.SignalsSeen.Inc()
	}
}

// SignalAccepted increments the accepted counter.
func (m *Metrics) SignalAccepted() {
	if m != nil {
		m.SignalsAccepted.Inc()
	}
}

// SignalRejected increments the rejected counter for reason.
func (m *Metrics) SignalRejected(reason string) {
	if m != nil {
		m.SignalsRejected.WithLabelValues(reason).Inc()
	}
}

// PositionOpened increments the opened counter and the open gauge.
func (m *Metrics) PositionOpened() {
	if m != nil {
		m.PositionsOpened.Inc()
		m.OpenPositions.Inc()
	}
}

// PositionClosed increments the closed counter for reason and drops the gauge.
func (m *Metrics) PositionClosed(reason string) {
	if m != nil {
		m.PositionsClosed.WithLabelValues(reason).Inc()
		m.OpenPositions.Dec()
	}
}

// PriceFetchError increments the price fetch error counter.
func (m *Metrics) PriceFetchError() {
	if m != nil {
		m.PriceFetchErrors.Inc()
	}
}

// SnapshotSaved increments the snapshot save counter.
func (m *Metrics) SnapshotSaved() {
	if m != nil {
		m.SnapshotSaves.Inc()
	}
}
