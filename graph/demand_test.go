package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDemand(t *testing.T) {
	tests := []struct {
		name   string
		graph  *Graph
		expect map[string]int
	}{
		{
			name: "source feeding two sinks directly",
			graph: &Graph{
				Nodes: []Node{
					observable("src", "interval"),
					observer("a"),
					observer("b"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "src", Target: "a"},
					{ID: "e2", Source: "src", Target: "b"},
				},
			},
			expect: map[string]int{"src": 2, "a": 1, "b": 1},
		},
		{
			name: "linear chain",
			graph: &Graph{
				Nodes: []Node{
					observable("src", "interval"),
					operator("m", "map"),
					observer("out"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "src", Target: "m"},
					{ID: "e2", Source: "m", Target: "out"},
				},
			},
			expect: map[string]int{"src": 1, "m": 1, "out": 1},
		},
		{
			name: "branching through operators",
			graph: &Graph{
				Nodes: []Node{
					observable("src", "interval"),
					operator("m1", "map"),
					operator("m2", "filter"),
					observer("a"),
					observer("b"),
					observer("c"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "src", Target: "m1"},
					{ID: "e2", Source: "src", Target: "m2"},
					{ID: "e3", Source: "m1", Target: "a"},
					{ID: "e4", Source: "m1", Target: "b"},
					{ID: "e5", Source: "m2", Target: "c"},
				},
			},
			expect: map[string]int{"src": 3, "m1": 2, "m2": 1, "a": 1, "b": 1, "c": 1},
		},
		{
			name: "disconnected node has zero demand",
			graph: &Graph{
				Nodes: []Node{
					observable("lonely", "interval"),
					observable("src", "interval"),
					observer("out"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "src", Target: "out"},
				},
			},
			expect: map[string]int{"lonely": 0, "src": 1, "out": 1},
		},
		{
			name: "dead branch contributes nothing",
			graph: &Graph{
				Nodes: []Node{
					observable("src", "interval"),
					operator("dead", "map"),
					observer("out"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "src", Target: "dead"},
					{ID: "e2", Source: "src", Target: "out"},
				},
			},
			expect: map[string]int{"src": 1, "dead": 0, "out": 1},
		},
		{
			name: "cyclic nodes stay at zero",
			graph: &Graph{
				Nodes: []Node{
					operator("x", "map"),
					operator("y", "map"),
					observable("src", "interval"),
					observer("out"),
				},
				Edges: []Edge{
					{ID: "e1", Source: "x", Target: "y"},
					{ID: "e2", Source: "y", Target: "x"},
					{ID: "e3", Source: "src", Target: "out"},
				},
			},
			expect: map[string]int{"x": 0, "y": 0, "src": 1, "out": 1},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := Resolve(test.graph)
			got := ComputeDemand(test.graph, r)
			for id, want := range test.expect {
				assert.Equal(t, want, got[id], "demand for node %s", id)
			}
		})
	}
}

func TestComputeDemandDeterministic(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			observable("src", "interval"),
			operator("m", "map"),
			observer("a"),
			observer("b"),
		},
		Edges: []Edge{
			{ID: "e1", Source: "src", Target: "m"},
			{ID: "e2", Source: "m", Target: "a"},
			{ID: "e3", Source: "m", Target: "b"},
		},
	}

	first := ComputeDemand(g, Resolve(g))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeDemand(g, Resolve(g)))
	}
}
