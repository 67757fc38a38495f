// Package testutil provides shared helpers for RxCraft package tests:
// virtual-time loops, emission collectors, and small sample graphs.
package testutil

import (
	"testing"

	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/stream"
)

// NewLoop returns a started loop driven by a bound fake clock. The loop is
// stopped automatically at test cleanup.
func NewLoop(t *testing.T) (*stream.Loop, *stream.FakeClock) {
	t.Helper()
	clock := stream.NewFakeClock()
	loop := stream.NewLoopWithClock(clock)
	clock.Bind(loop)
	loop.Start()
	t.Cleanup(loop.Stop)
	return loop, clock
}

// Collector records the emissions of one subscription for assertion
type Collector struct {
	Values    []any
	Errs      []error
	Completes int
	Cancels   int
}

// Sink builds a recording sink on the given loop
func (c *Collector) Sink(loop *stream.Loop) *stream.Sink {
	return stream.NewSink(loop, stream.Handlers{
		OnNext:     func(v any) { c.Values = append(c.Values, v) },
		OnError:    func(err error) { c.Errs = append(c.Errs, err) },
		OnComplete: func() { c.Completes++ },
		OnCancel:   func() { c.Cancels++ },
	})
}

// Subscribe attaches a fresh collector to a producer as a loop task and
// waits for the attach to run.
func Subscribe(t *testing.T, loop *stream.Loop, p stream.Producer) (*Collector, *stream.Sink) {
	t.Helper()
	c := &Collector{}
	var sink *stream.Sink
	loop.Post(func() {
		sink = c.Sink(loop)
		p(sink)
	})
	loop.Flush()
	return c, sink
}

// IntervalNode builds an interval source node description
func IntervalNode(id string, periodMillis int) graph.Node {
	return graph.Node{
		ID:      id,
		Kind:    graph.KindObservable,
		Subtype: "interval",
		Config:  map[string]any{"period": float64(periodMillis)},
	}
}

// ArrayNode builds a finite-sequence source node description
func ArrayNode(id string, valuesJSON string) graph.Node {
	return graph.Node{
		ID:      id,
		Kind:    graph.KindObservable,
		Subtype: "array",
		Config:  map[string]any{"values": valuesJSON},
	}
}

// ObserverNode builds a log sink node description
func ObserverNode(id string) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindObserver, Subtype: "log"}
}
