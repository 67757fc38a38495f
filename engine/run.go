package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/event"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/source"
	"github.com/langhuihui/rxcraft/stream"
)

// Run is one live instantiation of a graph: it owns the loop, the event
// bus, the hub for externally-fired sources and every subscription opened
// while it is alive. A run is built started; Stop tears everything down and
// a run is never restarted.
type Run struct {
	id        string
	graph     *graph.Graph
	res       *graph.Resolution
	demand    map[string]int
	startedAt time.Time

	loop    *stream.Loop
	bus     *event.Bus
	hub     *source.Hub
	metrics *engineMetrics

	mu      sync.Mutex
	subs    []*Subscription
	ordinal map[string]int
	roots   []*stream.Sink
	skipped map[string]string

	stopOnce sync.Once
	done     chan struct{}
}

// ID returns the run's unique identifier
func (r *Run) ID() string {
	return r.id
}

// Bus returns the run's lifecycle event bus
func (r *Run) Bus() *event.Bus {
	return r.bus
}

// Loop returns the run's scheduler
func (r *Run) Loop() *stream.Loop {
	return r.loop
}

// Demand returns the demand computed for a node at compile time
func (r *Run) Demand(nodeID string) int {
	return r.demand[nodeID]
}

// Skipped returns the compile-skip reason for a node, if any
func (r *Run) Skipped(nodeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.skipped[nodeID]
	return reason, ok
}

// Running reports whether the run has not been stopped yet
func (r *Run) Running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed once teardown has finished
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Fire injects one value into an externally-fired event source node
func (r *Run) Fire(nodeID string, value any) error {
	if _, ok := r.graph.Node(nodeID); !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrNodeNotFound, nodeID),
			"engine", "Fire", "inject event")
	}
	if reason, ok := r.Skipped(nodeID); ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q (%s)", errors.ErrNoProducer, nodeID, reason),
			"engine", "Fire", "inject event")
	}
	if !r.hub.Fire(nodeID, value) {
		return errors.WrapInvalid(errors.ErrRunStopped, "engine", "Fire", "inject event")
	}
	return nil
}

// Stop tears the run down: every live subscription is cancelled
// (active to cancelled only), then the loop stops, killing all pending
// timers, and finally the bus closes so nothing further is observable.
// Idempotent and safe to call concurrently with in-flight completions.
func (r *Run) Stop() {
	r.stopOnce.Do(func() {
		cancelled := make(chan struct{})
		posted := r.loop.Post(func() {
			r.mu.Lock()
			roots := append([]*stream.Sink(nil), r.roots...)
			r.mu.Unlock()
			for _, s := range roots {
				s.Unsubscribe()
			}
			close(cancelled)
		})
		if posted {
			select {
			case <-cancelled:
			case <-r.loop.Done():
			}
		}
		r.loop.Stop()
		r.bus.Close()
		close(r.done)
	})
}

// instrument wraps a node's raw producer so every subscription through it
// is tracked and reported on the bus. The actual attach is deferred one
// loop tick, which guarantees the subscribe event precedes even fully
// synchronous emissions from the raw producer.
func (r *Run) instrument(nodeID string, raw stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		sub := r.allocate(nodeID)
		r.loop.Post(func() {
			if !s.Active() {
				// Consumer vanished before the attach ran; nothing was
				// ever observable, so the subscription dies silently.
				r.discard(sub)
				return
			}
			r.activate(sub)

			child := stream.NewSink(r.loop, stream.Handlers{
				OnNext: func(v any) {
					r.reportNext(sub, v)
					s.Next(v)
				},
				OnError: func(err error) {
					r.terminate(sub, StateErrored, err)
					s.Error(err)
				},
				OnComplete: func() {
					r.terminate(sub, StateCompleted, nil)
					s.Complete()
				},
			})
			s.OnTeardown(func() {
				r.cancel(sub)
				child.Unsubscribe()
			})
			raw(child)
		})
	}
}

// allocate registers a new idle subscription for the node
func (r *Run) allocate(nodeID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.ordinal[nodeID]
	r.ordinal[nodeID] = n + 1
	sub := &Subscription{
		ID:     fmt.Sprintf("%s#%d:%s", nodeID, n, uuid.NewString()[:8]),
		NodeID: nodeID,
		state:  StateIdle,
	}
	r.subs = append(r.subs, sub)
	return sub
}

// activate moves an idle subscription to active and reports it
func (r *Run) activate(sub *Subscription) {
	r.mu.Lock()
	if sub.state != StateIdle {
		r.mu.Unlock()
		return
	}
	sub.state = StateActive
	r.mu.Unlock()

	r.metrics.recordSubscriptionDelta(1)
	r.publish(event.TypeSubscribe, sub, nil, nil)
}

// discard drops a subscription that was cancelled before it ever attached
func (r *Run) discard(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.state == StateIdle {
		sub.state = StateCancelled
	}
}

// reportNext counts and reports one value on an active subscription
func (r *Run) reportNext(sub *Subscription, v any) {
	r.mu.Lock()
	if sub.state != StateActive {
		r.mu.Unlock()
		return
	}
	sub.values++
	r.mu.Unlock()

	r.publish(event.TypeNext, sub, v, nil)
}

// terminate moves an active subscription to completed or errored
func (r *Run) terminate(sub *Subscription, state SubscriptionState, err error) {
	r.mu.Lock()
	if sub.state != StateActive {
		r.mu.Unlock()
		return
	}
	sub.state = state
	r.mu.Unlock()

	r.metrics.recordSubscriptionDelta(-1)
	switch state {
	case StateErrored:
		r.publish(event.TypeError, sub, nil, err)
	default:
		r.publish(event.TypeComplete, sub, nil, nil)
	}
}

// cancel moves an active subscription to cancelled. Cancelling a
// subscription that already reached a terminal state is a no-op.
func (r *Run) cancel(sub *Subscription) {
	r.mu.Lock()
	if sub.state != StateActive {
		r.mu.Unlock()
		return
	}
	sub.state = StateCancelled
	r.mu.Unlock()

	r.metrics.recordSubscriptionDelta(-1)
	r.publish(event.TypeUnsubscribe, sub, nil, nil)
}

func (r *Run) publish(t event.Type, sub *Subscription, value any, err error) {
	e := event.Event{
		Type:           t,
		NodeID:         sub.NodeID,
		SubscriptionID: sub.ID,
		Value:          value,
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.bus.Publish(e)
	r.metrics.recordEvent(string(t))
}

// NodeStatus is the externally visible snapshot of one node in a run
type NodeStatus struct {
	Demand        int                  `json:"demand"`
	Skipped       string               `json:"skipped,omitempty"`
	Subscriptions []SubscriptionStatus `json:"subscriptions,omitempty"`
}

// Status is a point-in-time snapshot of a run
type Status struct {
	Running   bool                  `json:"running"`
	RunID     string                `json:"run_id,omitempty"`
	StartedAt time.Time             `json:"started_at,omitempty"`
	Nodes     map[string]NodeStatus `json:"nodes,omitempty"`
}

// Status settles the loop and snapshots every node's subscriptions
func (r *Run) Status() Status {
	r.loop.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := make(map[string]NodeStatus, len(r.graph.Nodes))
	for _, n := range r.graph.Nodes {
		nodes[n.ID] = NodeStatus{
			Demand:  r.demand[n.ID],
			Skipped: r.skipped[n.ID],
		}
	}
	for _, sub := range r.subs {
		ns := nodes[sub.NodeID]
		ns.Subscriptions = append(ns.Subscriptions, SubscriptionStatus{
			ID:     sub.ID,
			NodeID: sub.NodeID,
			State:  sub.state,
			Values: sub.values,
		})
		nodes[sub.NodeID] = ns
	}

	return Status{
		Running:   r.Running(),
		RunID:     r.id,
		StartedAt: r.startedAt,
		Nodes:     nodes,
	}
}
