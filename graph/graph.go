// Package graph defines the immutable node/edge description of a reactive
// dataflow graph and the connection resolution that derives, for every node,
// its ordered upstream producers and downstream consumer demand.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/langhuihui/rxcraft/errors"
)

// Kind classifies a node by its role in the dataflow graph
type Kind string

const (
	// KindObservable marks a node that produces values (timers, sequences, fetches)
	KindObservable Kind = "observable"
	// KindOperator marks a node that transforms upstream values
	KindOperator Kind = "operator"
	// KindObserver marks a terminal sink node that consumes values
	KindObserver Kind = "observer"
)

// Valid reports whether the kind is one of the three known roles
func (k Kind) Valid() bool {
	switch k {
	case KindObservable, KindOperator, KindObserver:
		return true
	}
	return false
}

// Port names the operator argument an edge feeds on a dual-input node
type Port string

const (
	// PortPrimary feeds the first operator argument
	PortPrimary Port = "primary"
	// PortSecondary feeds the second operator argument
	PortSecondary Port = "secondary"
	// PortNone lets resolution fall back to edge discovery order
	PortNone Port = ""
)

// Node is one component instance on the canvas. Identity is its ID.
// Config is read exactly once at producer-construction time; mutating it
// during a run has no effect until the run is restarted.
type Node struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Subtype    string         `json:"subtype"`
	Config     map[string]any `json:"config,omitempty"`
	MultiInput bool           `json:"multi_input,omitempty"`
}

// Edge is a directed connection between two nodes. TargetPort distinguishes
// which upstream feeds which argument of a dual-input target.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	TargetPort Port   `json:"target_port,omitempty"`
}

// Graph is the full JSON-serializable description handed to the engine.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Parse decodes a graph description from JSON
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.WrapInvalid(err, "graph", "Parse", "decode graph JSON")
	}
	return &g, nil
}

// Marshal encodes the graph back to JSON
func (g *Graph) Marshal() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, errors.WrapInvalid(err, "graph", "Marshal", "encode graph JSON")
	}
	return data, nil
}

// Node returns the node with the given id, if present
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeMap returns a lookup map keyed by node id
func (g *Graph) NodeMap() map[string]Node {
	m := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		m[n.ID] = n
	}
	return m
}

// Validate checks structural invariants that make a graph unusable as a
// whole: duplicate or empty node ids, unknown kinds, edges without ids.
// Softer defects (dangling edge endpoints, under-connected dual-input
// nodes, cycles) are NOT errors here; resolution degrades those nodes to
// "no producer" so the rest of the graph keeps running.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node with empty id"),
				"graph", "Validate", "validation failed")
		}
		if seen[n.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrDuplicateNode, n.ID),
				"graph", "Validate", "validation failed")
		}
		seen[n.ID] = true

		if !n.Kind.Valid() {
			return errors.WrapInvalid(
				fmt.Errorf("node %s has unknown kind %q", n.ID, n.Kind),
				"graph", "Validate", "validation failed")
		}
		if n.Subtype == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node %s has empty subtype", n.ID),
				"graph", "Validate", "validation failed")
		}
	}

	edgeSeen := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("edge with empty id"),
				"graph", "Validate", "validation failed")
		}
		if edgeSeen[e.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate edge id: %s", e.ID),
				"graph", "Validate", "validation failed")
		}
		edgeSeen[e.ID] = true

		switch e.TargetPort {
		case PortNone, PortPrimary, PortSecondary:
		default:
			return errors.WrapInvalid(
				fmt.Errorf("edge %s has unknown target port %q", e.ID, e.TargetPort),
				"graph", "Validate", "validation failed")
		}
	}

	return nil
}

// Clone returns a deep copy so callers can stage edits without affecting a
// staged or running graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Edges, g.Edges)
	for i, n := range g.Nodes {
		cn := n
		if n.Config != nil {
			cn.Config = make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cn.Config[k] = v
			}
		}
		out.Nodes[i] = cn
	}
	return out
}
