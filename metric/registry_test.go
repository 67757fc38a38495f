package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langhuihui/rxcraft/errors"
)

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_operations_total",
		Help: "Test counter",
	})

	require.NoError(t, registry.RegisterCounter("engine", "operations", counter))

	counter.Inc()
	counter.Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "test_operations_total" {
			found = true
			assert.Equal(t, float64(2), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "registered counter must be gatherable")
}

func TestRegisterDuplicateIsInvalid(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "g"})
	second := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge_2", Help: "g"})

	require.NoError(t, registry.RegisterGauge("svc", "g", first))

	err := registry.RegisterGauge("svc", "g", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSameNameDifferentServices(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "svc_a_ops", Help: "a"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "svc_b_ops", Help: "b"})

	assert.NoError(t, registry.RegisterCounter("a", "ops", a))
	assert.NoError(t, registry.RegisterCounter("b", "ops", b))
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "transient_total", Help: "t"})
	require.NoError(t, registry.RegisterCounter("svc", "transient", counter))

	assert.True(t, registry.Unregister("svc", "transient"))
	assert.False(t, registry.Unregister("svc", "transient"), "second unregister is a no-op")

	again := prometheus.NewCounter(prometheus.CounterOpts{Name: "transient_total", Help: "t"})
	assert.NoError(t, registry.RegisterCounter("svc", "transient", again))
}

func TestCoreMetricsRecording(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordServiceStatus("engine", StatusRunning)
	core.RecordEventsDropped("gateway", 3)
	core.RecordProcessingDuration("gateway", "/api/run/start", 25*time.Millisecond)
	core.RecordError("engine", "invalid")
	core.RecordHealthStatus("gateway", true)
	core.RecordHTTPRequest("GET", "/api/run/status", "200")
	core.RecordWebsocketClients(4)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
