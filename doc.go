// Package rxcraft compiles visual dataflow graphs into live reactive
// stream networks.
//
// A graph arrives as JSON: observable nodes (timers, sequences, fetches,
// externally-fired events), operator nodes (map, filter, take, zip,
// switchMapTo and friends) and observer nodes, wired by edges. The engine
// resolves the graph, computes per-node demand, and builds a cold producer
// chain per observer on a single-threaded cooperative scheduler, so an
// intermediate node carries exactly as many subscriptions as consumers
// demand it.
//
// Every subscription reports its lifecycle (subscribe, next, error,
// complete, unsubscribe) on an ordered event bus, which the HTTP gateway
// streams to the editor over a websocket. Stopping a run cancels every
// live subscription deterministically before the scheduler and bus shut
// down.
//
// Layout:
//
//   - graph:     parsing, validation, resolution, demand computation
//   - stream:    the scheduler, producers, sinks and virtual-time clock
//   - source:    observable node producers and the external-event hub
//   - operator:  transform and combination operators
//   - engine:    compilation, instrumentation, run lifecycle
//   - event:     the lifecycle event bus
//   - flowstore: versioned named-flow persistence
//   - gateway:   the HTTP and websocket surface
//   - metric:    Prometheus registry and scrape endpoint
package rxcraft
