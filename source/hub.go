package source

import (
	"time"

	"github.com/langhuihui/rxcraft/stream"
)

// Hub fans externally-triggered events (pointer moves, key presses,
// anything the UI injects) out to the live subscriptions of event-source
// nodes. Listener bookkeeping is confined to the loop goroutine; Fire may
// be called from any goroutine and re-enters through Post.
type Hub struct {
	loop      *stream.Loop
	listeners map[string]map[*stream.Sink]struct{}
}

// NewHub creates a hub bound to one run's loop
func NewHub(loop *stream.Loop) *Hub {
	return &Hub{
		loop:      loop,
		listeners: make(map[string]map[*stream.Sink]struct{}),
	}
}

// Producer returns the producer for one event-source node. Subscriptions
// receive every subsequent firing for the node and never complete on their
// own.
func (h *Hub) Producer(nodeID string) stream.Producer {
	return func(s *stream.Sink) {
		set := h.listeners[nodeID]
		if set == nil {
			set = make(map[*stream.Sink]struct{})
			h.listeners[nodeID] = set
		}
		set[s] = struct{}{}
		s.OnTeardown(func() {
			delete(set, s)
		})
	}
}

// Fire injects one event value for a node. Returns false when the run has
// already stopped. Firings are delivered in injection order.
func (h *Hub) Fire(nodeID string, value any) bool {
	if value == nil {
		value = map[string]any{"at": time.Now().UnixMilli()}
	}
	return h.loop.Post(func() {
		for s := range h.listeners[nodeID] {
			s.Next(value)
		}
	})
}
