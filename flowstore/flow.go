package flowstore

import (
	"fmt"
	"time"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/graph"
)

// Flow is a named, versioned graph definition with its canvas layout. It
// is what the editor saves and loads; the engine only ever sees the
// embedded graph.
type Flow struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	// The executable graph description
	Graph graph.Graph `json:"graph"`

	// Canvas coordinates by node ID
	Positions map[string]Position `json:"positions,omitempty"`

	// Builtin marks shipped sample flows, which cannot be deleted
	Builtin bool `json:"builtin,omitempty"`

	// Audit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position represents canvas coordinates for a node
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate checks if the flow is well-formed enough to store
func (f *Flow) Validate() error {
	if f.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Validate", "validation failed")
	}
	if f.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow name cannot be empty"), "flowstore", "Validate", "validation failed")
	}

	if err := f.Graph.Validate(); err != nil {
		return errors.WrapInvalid(err, "flowstore", "Validate", "graph validation failed")
	}

	nodeIDs := make(map[string]bool, len(f.Graph.Nodes))
	for _, n := range f.Graph.Nodes {
		nodeIDs[n.ID] = true
	}
	for id := range f.Positions {
		if !nodeIDs[id] {
			return errors.WrapInvalid(
				fmt.Errorf("position references non-existent node: %s", id),
				"flowstore", "Validate", "position validation failed")
		}
	}

	return nil
}

// clone returns a deep copy so store callers never alias stored state
func (f *Flow) clone() *Flow {
	out := *f
	out.Graph = *f.Graph.Clone()
	if f.Positions != nil {
		out.Positions = make(map[string]Position, len(f.Positions))
		for k, v := range f.Positions {
			out.Positions[k] = v
		}
	}
	return &out
}
