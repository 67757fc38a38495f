// Package metric provides Prometheus-based metrics collection and an HTTP
// server for RxCraft monitoring.
//
// A central MetricsRegistry wraps a private prometheus.Registry and manages
// two layers of metrics: core platform metrics registered automatically
// (service status, lifecycle event counters, error totals, gateway traffic)
// and service-specific metrics registered through the MetricsRegistrar
// interface with per-service name deduplication. The Server exposes the
// registry at /metrics in Prometheus format alongside a /health endpoint.
//
// Typical wiring:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
// Components receive the registry in their constructors and register their
// own collectors; registration failures are classified through the errors
// package (duplicate names are Invalid, prometheus failures Fatal).
//
// All core metrics use the "rxcraft" namespace:
//   - rxcraft_service_status{service="..."}
//   - rxcraft_events_published_total{service="...",type="..."}
//   - rxcraft_http_requests_total{method="...",path="...",status="..."}
package metric
