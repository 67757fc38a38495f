package engine

import (
	"log/slog"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/operator"
	"github.com/langhuihui/rxcraft/source"
	"github.com/langhuihui/rxcraft/stream"
)

// compile walks the resolved graph in topological order, builds each node's
// raw producer from the factories, instruments it, and attaches the root
// sinks that actually drive the network: one per observer node, plus one
// probe per demand-0 terminal node so isolated nodes stay observable.
//
// A node that cannot be built is skipped with a reason, and the skip
// poisons everything that depends on it; the rest of the graph still runs.
func (r *Run) compile(logger *slog.Logger, sourceOpts []source.Option) {
	sources := source.NewFactory(r.loop, r.hub, logger, sourceOpts...)
	operators := operator.NewFactory(r.loop, logger)

	nodes := r.graph.NodeMap()
	producers := make(map[string]stream.Producer, len(nodes))

	for _, id := range r.res.Order() {
		node := nodes[id]

		if r.res.UnderConnected(id) {
			r.skipped[id] = "multi-input node is missing an upstream connection"
			continue
		}

		upstreams, ok := r.upstreamProducers(id, producers)
		if !ok {
			continue
		}
		if node.Kind == graph.KindObserver && len(upstreams) == 0 {
			r.skipped[id] = "observer has no upstream to observe"
			continue
		}

		raw, err := r.buildRaw(node, upstreams, sources, operators)
		if err != nil {
			r.skipped[id] = err.Error()
			logger.Warn("node skipped", "node", id, "subtype", node.Subtype, "error", err)
			continue
		}

		producers[id] = r.instrument(id, raw)
	}

	for _, n := range r.graph.Nodes {
		if r.res.OnCycle(n.ID) {
			r.skipped[n.ID] = errors.ErrCycleDetected.Error()
		}
	}
	r.metrics.recordSkippedNodes(len(r.skipped))

	// Attach order follows topology so upstream subscribe events appear
	// before downstream ones on the bus.
	for _, id := range r.res.Order() {
		p, ok := producers[id]
		if !ok {
			continue
		}
		node := nodes[id]
		switch {
		case node.Kind == graph.KindObserver:
			r.attach(p)
		case r.demand[id] == 0 && r.res.Terminal(id):
			// Self-observation probe: nothing downstream demands this
			// node, but it should still visibly run.
			r.attach(p)
		}
	}
}

// upstreamProducers collects the instrumented producers feeding a node.
// Returns false (and records the skip) when any upstream was itself skipped.
func (r *Run) upstreamProducers(id string, producers map[string]stream.Producer) ([]stream.Producer, bool) {
	ids := r.res.Upstreams(id)
	out := make([]stream.Producer, 0, len(ids))
	for _, up := range ids {
		p, ok := producers[up]
		if !ok {
			r.skipped[id] = "upstream node " + up + " is unavailable"
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// buildRaw dispatches to the factory matching the node's kind
func (r *Run) buildRaw(
	node graph.Node,
	upstreams []stream.Producer,
	sources *source.Factory,
	operators *operator.Factory,
) (stream.Producer, error) {
	switch node.Kind {
	case graph.KindObservable:
		return sources.Build(node, upstreams)
	case graph.KindOperator:
		return operators.Build(node, upstreams)
	default:
		// Observers relay their single upstream unchanged; the value flow
		// itself is what the instrumentation reports.
		return stream.Passthrough(upstreams[0]), nil
	}
}

// attach posts a root subscription to the producer. Root sinks carry no
// handlers of their own: every observable effect flows through the bus.
func (r *Run) attach(p stream.Producer) {
	r.loop.Post(func() {
		sink := stream.NewSink(r.loop, stream.Handlers{})
		r.mu.Lock()
		r.roots = append(r.roots, sink)
		r.mu.Unlock()
		p(sink)
	})
}
