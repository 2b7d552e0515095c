package stress

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "lockfree"
	promSubsystem = "stress"
)

// Metrics exports the progress of stress runs to Prometheus.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	opsM     *prometheus.CounterVec
	sizeM    *prometheus.GaugeVec
	liveM    *prometheus.GaugeVec
	pendingM *prometheus.GaugeVec
	retriesM *prometheus.GaugeVec
}

// NewMetrics creates the stress metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "operations_total",
			Help:      "Container operations performed by stress workers.",
		}, []string{"container", "op"}),
		sizeM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "size",
			Help:      "Last observed container size.",
		}, []string{"container"}),
		liveM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "live_nodes",
			Help:      "Nodes allocated and not yet reclaimed.",
		}, []string{"container"}),
		pendingM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "pending_nodes",
			Help:      "Detached nodes waiting for deferred reclamation.",
		}, []string{"container"}),
		retriesM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "cas_retries",
			Help:      "Failed CAS attempts since the container was created.",
		}, []string{"container"}),
	}
	reg.MustRegister(m.opsM, m.sizeM, m.liveM, m.pendingM, m.retriesM)
	return m
}

// opCounters are the per-run counters, curried once so workers only do
// an atomic add per operation.
type opCounters struct {
	push, pop, emptyPop prometheus.Counter
}

func (m *Metrics) counters(name string) opCounters {
	if m == nil {
		return opCounters{}
	}
	return opCounters{
		push:     m.opsM.WithLabelValues(name, "push"),
		pop:      m.opsM.WithLabelValues(name, "pop"),
		emptyPop: m.opsM.WithLabelValues(name, "empty_pop"),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// observe refreshes the gauges from c.
func (m *Metrics) observe(name string, c Container) {
	if m == nil {
		return
	}
	m.sizeM.WithLabelValues(name).Set(float64(c.Size()))
	if ic, ok := c.(Instrumented); ok {
		m.liveM.WithLabelValues(name).Set(float64(ic.Nodes().Live()))
		m.retriesM.WithLabelValues(name).Set(float64(ic.Retries()))
	}
	if pc, ok := c.(PendingReporter); ok {
		m.pendingM.WithLabelValues(name).Set(float64(pc.Pending()))
	}
}
