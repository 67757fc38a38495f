package graph

import "fmt"

// DroppedEdge records an edge excluded from resolution and why
type DroppedEdge struct {
	Edge   Edge
	Reason string
}

// Resolution is the derived connection structure for one graph: ordered
// upstream lists per node (named ports resolved for dual-input nodes),
// ordered downstream lists, a topological build order, and the set of
// nodes poisoned by cycles. Built once per run; read-only afterwards.
type Resolution struct {
	graph       *Graph
	upstreams   map[string][]string
	downstreams map[string][]string
	order       []string
	onCycle     map[string]bool
	under       map[string]bool
	dropped     []DroppedEdge
}

// Resolve derives the connection structure for a graph. Malformed pieces
// degrade rather than fail: dangling edges are dropped, under-connected
// dual-input nodes are flagged, and cycles are detected with an iterative
// traversal so resolution never recurses unboundedly.
func Resolve(g *Graph) *Resolution {
	r := &Resolution{
		graph:       g,
		upstreams:   make(map[string][]string),
		downstreams: make(map[string][]string),
		onCycle:     make(map[string]bool),
		under:       make(map[string]bool),
	}

	nodes := g.NodeMap()

	// Drop edges whose endpoints do not exist
	valid := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if _, ok := nodes[e.Source]; !ok {
			r.dropped = append(r.dropped, DroppedEdge{Edge: e, Reason: fmt.Sprintf("source node %q missing", e.Source)})
			continue
		}
		if _, ok := nodes[e.Target]; !ok {
			r.dropped = append(r.dropped, DroppedEdge{Edge: e, Reason: fmt.Sprintf("target node %q missing", e.Target)})
			continue
		}
		valid = append(valid, e)
	}

	r.resolveUpstreams(nodes, valid)

	for _, e := range valid {
		r.downstreams[e.Source] = append(r.downstreams[e.Source], e.Target)
	}

	r.computeOrder(valid)
	return r
}

// resolveUpstreams builds the ordered upstream list per node. Dual-input
// nodes get (primary, secondary) head slots filled by named port first,
// else by edge discovery order; remaining upstreams follow positionally.
func (r *Resolution) resolveUpstreams(nodes map[string]Node, edges []Edge) {
	type slots struct {
		primary   string
		secondary string
		rest      []string
	}
	multi := make(map[string]*slots)

	for _, e := range edges {
		target := nodes[e.Target]
		if !target.MultiInput {
			r.upstreams[e.Target] = append(r.upstreams[e.Target], e.Source)
			continue
		}

		s := multi[e.Target]
		if s == nil {
			s = &slots{}
			multi[e.Target] = s
		}
		switch e.TargetPort {
		case PortPrimary:
			if s.primary == "" {
				s.primary = e.Source
			} else {
				s.rest = append(s.rest, e.Source)
			}
		case PortSecondary:
			if s.secondary == "" {
				s.secondary = e.Source
			} else {
				s.rest = append(s.rest, e.Source)
			}
		default:
			// Positional fallback: first unnamed edge fills the first
			// empty slot, discovery order preserved
			if s.primary == "" {
				s.primary = e.Source
			} else if s.secondary == "" {
				s.secondary = e.Source
			} else {
				s.rest = append(s.rest, e.Source)
			}
		}
	}

	for id, s := range multi {
		if s.primary == "" || s.secondary == "" {
			// Fewer than 2 resolved upstreams: the node produces nothing
			r.under[id] = true
			ups := make([]string, 0, 1)
			if s.primary != "" {
				ups = append(ups, s.primary)
			}
			if s.secondary != "" {
				ups = append(ups, s.secondary)
			}
			r.upstreams[id] = ups
			continue
		}
		ups := append([]string{s.primary, s.secondary}, s.rest...)
		r.upstreams[id] = ups
	}
}

// computeOrder runs Kahn's algorithm over the valid edges. Nodes that never
// reach in-degree zero sit on a cycle (or are fed only through one) and are
// excluded from the build order; the engine treats them as having no
// producer available.
func (r *Resolution) computeOrder(edges []Edge) {
	indegree := make(map[string]int, len(r.graph.Nodes))
	for _, n := range r.graph.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range edges {
		indegree[e.Target]++
	}

	// Seed in declaration order for deterministic output
	queue := make([]string, 0, len(r.graph.Nodes))
	for _, n := range r.graph.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := make(map[string]bool, len(r.graph.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		r.order = append(r.order, id)

		for _, e := range edges {
			if e.Source != id {
				continue
			}
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				queue = append(queue, e.Target)
			}
		}
	}

	for _, n := range r.graph.Nodes {
		if !visited[n.ID] {
			r.onCycle[n.ID] = true
		}
	}
}

// Upstreams returns the ordered upstream node ids feeding the given node.
// For dual-input nodes the first two entries are (primary, secondary).
func (r *Resolution) Upstreams(id string) []string {
	return r.upstreams[id]
}

// Downstreams returns the ordered downstream node ids fed by the given node
func (r *Resolution) Downstreams(id string) []string {
	return r.downstreams[id]
}

// Order returns a topological build order over the acyclic portion of the
// graph (upstreams always precede their consumers).
func (r *Resolution) Order() []string {
	return r.order
}

// OnCycle reports whether the node is on (or only reachable through) a
// cycle and therefore has no producer available.
func (r *Resolution) OnCycle(id string) bool {
	return r.onCycle[id]
}

// UnderConnected reports whether a dual-input node resolved fewer than two
// upstreams and therefore produces nothing.
func (r *Resolution) UnderConnected(id string) bool {
	return r.under[id]
}

// Dropped returns the edges excluded from resolution with reasons
func (r *Resolution) Dropped() []DroppedEdge {
	return r.dropped
}

// Terminal reports whether the node has no outgoing edges. Terminal
// non-observer nodes get a single self-observation subscription so
// disconnected nodes remain visible on the event bus.
func (r *Resolution) Terminal(id string) bool {
	return len(r.downstreams[id]) == 0
}
