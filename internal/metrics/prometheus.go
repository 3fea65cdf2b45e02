package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus.
//
// Metrics are created and registered lazily on first use so that an unused
// collector leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	triggersSent     *prometheus.CounterVec
	triggersDropped  *prometheus.CounterVec
	sessionsInstalls prometheus.Counter
	sessionEvictions *prometheus.CounterVec
	sessionActive    prometheus.Gauge
	localSignals     prometheus.Counter
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed collector.
//
// reg defaults to prometheus.DefaultRegisterer and namespace to "clickr".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "clickr"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.triggersSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "relay",
			Name:      "triggers_sent_total",
			Help:      "Triggers written to the active session by kind.",
		}, []string{"kind"})
		p.triggersDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "relay",
			Name:      "triggers_dropped_total",
			Help:      "Triggers discarded because no session was active or the write failed.",
		}, []string{"kind"})
		p.sessionsInstalls = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "installs_total",
			Help:      "Sessions installed by the push endpoint.",
		})
		p.sessionEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "evictions_total",
			Help:      "Sessions removed from the registry by reason.",
		}, []string{"reason"})
		p.sessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "1 while a client session is installed.",
		})
		p.localSignals = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ipc",
			Name:      "signals_total",
			Help:      "Non-empty signals read from the local trigger socket.",
		})

		p.reg.MustRegister(
			p.triggersSent,
			p.triggersDropped,
			p.sessionsInstalls,
			p.sessionEvictions,
			p.sessionActive,
			p.localSignals,
		)
	})
}

// TriggerSent increments the sent counter for kind.
func (p *PrometheusCollector) TriggerSent(kind string) {
	p.ensureRegistered()
	p.triggersSent.WithLabelValues(kind).Inc()
}

// TriggerDropped increments the dropped counter for kind.
func (p *PrometheusCollector) TriggerDropped(kind string) {
	p.ensureRegistered()
	p.triggersDropped.WithLabelValues(kind).Inc()
}

// SessionInstalled increments the install counter.
func (p *PrometheusCollector) SessionInstalled() {
	p.ensureRegistered()
	p.sessionsInstalls.Inc()
}

// SessionEvicted increments the eviction counter for reason.
func (p *PrometheusCollector) SessionEvicted(reason string) {
	p.ensureRegistered()
	p.sessionEvictions.WithLabelValues(reason).Inc()
}

// SetSessionActive sets the active gauge to 1 or 0.
func (p *PrometheusCollector) SetSessionActive(active bool) {
	p.ensureRegistered()
	if active {
		p.sessionActive.Set(1)
		return
	}
	p.sessionActive.Set(0)
}

// LocalSignal increments the local signal counter.
func (p *PrometheusCollector) LocalSignal() {
	p.ensureRegistered()
	p.localSignals.Inc()
}
