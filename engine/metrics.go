package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/langhuihui/rxcraft/metric"
)

// engineMetrics holds Prometheus metrics for run lifecycle and event flow.
type engineMetrics struct {
	// Run lifecycle
	starts *prometheus.CounterVec // By status (success/failure)
	stops  *prometheus.CounterVec // By status

	startDuration prometheus.Histogram
	stopDuration  prometheus.Histogram

	// Event flow
	events *prometheus.CounterVec // By lifecycle event type

	// State metrics
	activeRuns          prometheus.Gauge
	activeSubscriptions prometheus.Gauge
	skippedNodes        prometheus.Counter
}

// newEngineMetrics creates and registers engine metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "starts_total",
			Help:      "Total number of run start operations",
		}, []string{"status"}), // status: success, failure

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "stops_total",
			Help:      "Total number of run stop operations",
		}, []string{"status"}),

		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "start_duration_seconds",
			Help:      "Run start (compile and attach) duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		stopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "stop_duration_seconds",
			Help:      "Run teardown duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "lifecycle_events_total",
			Help:      "Total lifecycle events published, by type",
		}, []string{"type"}),

		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "active",
			Help:      "Current number of active runs (0 or 1)",
		}),

		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "active_subscriptions",
			Help:      "Current number of active subscriptions across the run",
		}),

		skippedNodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxcraft",
			Subsystem: "run",
			Name:      "skipped_nodes_total",
			Help:      "Total nodes skipped at compile time (cycles, missing inputs, bad config)",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "starts", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("engine", "start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("engine", "stop_duration", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "events", m.events); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "active_runs", m.activeRuns); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "active_subscriptions", m.activeSubscriptions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "skipped_nodes", m.skippedNodes); err != nil {
		return nil, err
	}

	return m, nil
}

// recordStart records a run start operation.
func (m *engineMetrics) recordStart(success bool, duration float64) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.starts.WithLabelValues(status).Inc()
	m.startDuration.Observe(duration)

	if success {
		m.activeRuns.Inc()
	}
}

// recordStop records a run stop operation.
func (m *engineMetrics) recordStop(success bool, duration float64) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.stops.WithLabelValues(status).Inc()
	m.stopDuration.Observe(duration)

	if success {
		m.activeRuns.Dec()
		m.activeSubscriptions.Set(0)
	}
}

// recordEvent counts one published lifecycle event.
func (m *engineMetrics) recordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// recordSubscriptionDelta adjusts the active subscription gauge.
func (m *engineMetrics) recordSubscriptionDelta(delta int) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Add(float64(delta))
}

// recordSkippedNodes counts nodes that could not be compiled.
func (m *engineMetrics) recordSkippedNodes(n int) {
	if m == nil || n == 0 {
		return
	}
	m.skippedNodes.Add(float64(n))
}
