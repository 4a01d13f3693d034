package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the server collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	mutations   *prometheus.CounterVec
	worldBlocks prometheus.Gauge
	builds      *prometheus.CounterVec
	buildBlocks *prometheus.CounterVec
	buildTime   *prometheus.HistogramVec
	sessions    prometheus.Gauge
	rejected    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "world_mutations_total",
			Help:      "World mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		worldBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "world_blocks",
			Help:      "Blocks currently in the world.",
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structure_builds_total",
			Help:      "Structure builds by template, mode and outcome.",
		}, []string{"structure", "mode", "outcome"}),
		buildBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structure_build_blocks_total",
			Help:      "Blocks handled by structure builds.",
		}, []string{"result"}),
		buildTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "structure_build_duration_seconds",
			Help:      "Wall time of structure builds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions",
			Help:      "Connected websocket sessions.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_rejected_messages_total",
			Help:      "Inbound websocket messages rejected by reason.",
		}, []string{"code"}),
	}
	if reg != nil {
		reg.MustRegister(m.mutations, m.worldBlocks, m.builds, m.buildBlocks, m.buildTime, m.sessions, m.rejected)
	}
	return m
}

func (m *Metrics) Mutation(op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) WorldBlocks(n int) {
	if m == nil {
		return
	}
	m.worldBlocks.Set(float64(n))
}

func (m *Metrics) Build(structure, mode, outcome string, placed, skipped int, seconds float64) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(structure, mode, outcome).Inc()
	m.buildBlocks.WithLabelValues("placed").Add(float64(placed))
	m.buildBlocks.WithLabelValues("skipped").Add(float64(skipped))
	m.buildTime.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(code).Inc()
}
