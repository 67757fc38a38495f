package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service status values reported through RecordServiceStatus
const (
	StatusStopped  = 0
	StatusStarting = 1
	StatusRunning  = 2
	StatusStopping = 3
	StatusFailed   = 4
)

// Metrics contains all platform-level metrics (not domain-specific)
type Metrics struct {
	// Service metrics
	ServiceStatus      *prometheus.GaugeVec
	EventsDropped      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Gateway metrics
	HTTPRequests     *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rxcraft",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rxcraft",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of lifecycle events dropped by slow consumers",
			},
			[]string{"service"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rxcraft",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Operation processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rxcraft",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rxcraft",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rxcraft",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests handled by the gateway",
			},
			[]string{"method", "path", "status"},
		),

		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rxcraft",
				Subsystem: "websocket",
				Name:      "clients",
				Help:      "Current number of connected websocket event consumers",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordEventsDropped adds to the dropped event counter
func (c *Metrics) RecordEventsDropped(service string, n int) {
	c.EventsDropped.WithLabelValues(service).Add(float64(n))
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordHTTPRequest increments the gateway request counter
func (c *Metrics) RecordHTTPRequest(method, path, status string) {
	c.HTTPRequests.WithLabelValues(method, path, status).Inc()
}

// RecordWebsocketClients sets the connected websocket client gauge
func (c *Metrics) RecordWebsocketClients(n int) {
	c.WebsocketClients.Set(float64(n))
}
