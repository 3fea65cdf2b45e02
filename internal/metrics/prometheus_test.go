package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.TriggerSent("ping")
	p.TriggerSent("ping")
	p.TriggerSent("heartbeat")
	p.TriggerDropped("ping")
	p.SessionInstalled()
	p.SessionEvicted(EvictSuperseded)
	p.LocalSignal()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.triggersSent.WithLabelValues("ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.triggersSent.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.triggersDropped.WithLabelValues("ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionsInstalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionEvictions.WithLabelValues(EvictSuperseded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.localSignals))
}

func TestPrometheusCollector_SessionActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.SetSessionActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionActive))

	p.SetSessionActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.sessionActive))
}

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "lazy")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	p.SessionInstalled()

	families, err = reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "lazy_session_installs_total")
}

func TestNopMetrics(t *testing.T) {
	var c Collector = NewNop()
	assert.NotPanics(t, func() {
		c.TriggerSent("ping")
		c.TriggerDropped("ping")
		c.SessionInstalled()
		c.SessionEvicted(EvictShutdown)
		c.SetSessionActive(true)
		c.LocalSignal()
	})
}
