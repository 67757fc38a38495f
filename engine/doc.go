// Package engine compiles graph descriptions into live producer networks
// and manages their lifecycle.
//
// A Run owns everything one execution needs: a dedicated scheduler loop, a
// lifecycle event bus, a hub for externally-fired sources, and the registry
// of every subscription opened while it is alive. Compilation walks the
// resolved graph in topological order, builds each node's producer from the
// source and operator factories, and wraps it in instrumentation that
// reports subscribe/next/error/complete/unsubscribe events and enforces the
// monotonic subscription state machine.
//
// Because producers are cold, multiplexing needs no routing layer: each
// observer drives its own chain subscription, so an intermediate node is
// subscribed exactly as many times as there are observers downstream of it
// (its demand). Demand-0 terminal nodes get one probe subscription so that
// nodes nobody consumes still visibly run.
//
// Teardown is deterministic: Run.Stop cancels every root sink on the loop,
// which cascades cancellation up every chain, then stops the loop (killing
// all pending timers) and closes the bus. Completions racing teardown are
// dropped by the stopped loop, never delivered late.
package engine
