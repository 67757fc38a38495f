package flowstore

import "github.com/langhuihui/rxcraft/graph"

// SampleFlows returns the builtin flow library shipped with every install.
// Each covers one corner of the runtime so a fresh editor has something to
// open, run and inspect immediately.
func SampleFlows() []*Flow {
	return []*Flow{
		{
			ID:          "sample-interval-take",
			Name:        "Interval with take",
			Description: "A 1s timer limited to 5 ticks, logged to the console",
			Graph: graph.Graph{
				Nodes: []graph.Node{
					{ID: "timer", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(1000)}},
					{ID: "take5", Kind: graph.KindOperator, Subtype: "take", Config: map[string]any{"count": float64(5)}},
					{ID: "log", Kind: graph.KindObserver, Subtype: "log"},
				},
				Edges: []graph.Edge{
					{ID: "e1", Source: "timer", Target: "take5"},
					{ID: "e2", Source: "take5", Target: "log"},
				},
			},
			Positions: map[string]Position{
				"timer": {X: 80, Y: 120},
				"take5": {X: 320, Y: 120},
				"log":   {X: 560, Y: 120},
			},
		},
		{
			ID:          "sample-switch-map",
			Name:        "Restarting inner stream",
			Description: "Every outer tick cancels the inner sequence and replays it from the start",
			Graph: graph.Graph{
				Nodes: []graph.Node{
					{ID: "outer", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(3000)}},
					{ID: "inner", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(500)}},
					{ID: "switch", Kind: graph.KindOperator, Subtype: "switchMapTo", MultiInput: true},
					{ID: "log", Kind: graph.KindObserver, Subtype: "log"},
				},
				Edges: []graph.Edge{
					{ID: "e1", Source: "outer", Target: "switch", TargetPort: graph.PortPrimary},
					{ID: "e2", Source: "inner", Target: "switch", TargetPort: graph.PortSecondary},
					{ID: "e3", Source: "switch", Target: "log"},
				},
			},
			Positions: map[string]Position{
				"outer":  {X: 80, Y: 60},
				"inner":  {X: 80, Y: 200},
				"switch": {X: 340, Y: 130},
				"log":    {X: 580, Y: 130},
			},
		},
		{
			ID:          "sample-race",
			Name:        "Race of two timers",
			Description: "Two intervals race; only the first to emit survives",
			Graph: graph.Graph{
				Nodes: []graph.Node{
					{ID: "fast", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(700)}},
					{ID: "slow", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(1000)}},
					{ID: "race", Kind: graph.KindObservable, Subtype: "race", MultiInput: true},
					{ID: "log", Kind: graph.KindObserver, Subtype: "log"},
				},
				Edges: []graph.Edge{
					{ID: "e1", Source: "fast", Target: "race", TargetPort: graph.PortPrimary},
					{ID: "e2", Source: "slow", Target: "race", TargetPort: graph.PortSecondary},
					{ID: "e3", Source: "race", Target: "log"},
				},
			},
			Positions: map[string]Position{
				"fast": {X: 80, Y: 60},
				"slow": {X: 80, Y: 200},
				"race": {X: 340, Y: 130},
				"log":  {X: 580, Y: 130},
			},
		},
		{
			ID:          "sample-mouse-buffer",
			Name:        "Buffered mouse events",
			Description: "Mouse moves collected into batches, flushed on each 1s tick",
			Graph: graph.Graph{
				Nodes: []graph.Node{
					{ID: "mouse", Kind: graph.KindObservable, Subtype: "mousemove"},
					{ID: "tick", Kind: graph.KindObservable, Subtype: "interval", Config: map[string]any{"period": float64(1000)}},
					{ID: "batch", Kind: graph.KindOperator, Subtype: "buffer", MultiInput: true},
					{ID: "log", Kind: graph.KindObserver, Subtype: "log"},
				},
				Edges: []graph.Edge{
					{ID: "e1", Source: "mouse", Target: "batch", TargetPort: graph.PortPrimary},
					{ID: "e2", Source: "tick", Target: "batch", TargetPort: graph.PortSecondary},
					{ID: "e3", Source: "batch", Target: "log"},
				},
			},
			Positions: map[string]Position{
				"mouse": {X: 80, Y: 60},
				"tick":  {X: 80, Y: 200},
				"batch": {X: 340, Y: 130},
				"log":   {X: 580, Y: 130},
			},
		},
		{
			ID:          "sample-fetch-retry",
			Name:        "Fetch with retry",
			Description: "An HTTP fetch retried twice on failure, values mapped to their status",
			Graph: graph.Graph{
				Nodes: []graph.Node{
					{ID: "fetch", Kind: graph.KindObservable, Subtype: "fetch", Config: map[string]any{"url": "https://example.com/data.json"}},
					{ID: "retry2", Kind: graph.KindOperator, Subtype: "retry", Config: map[string]any{"count": float64(2)}},
					{ID: "pick", Kind: graph.KindOperator, Subtype: "map", Config: map[string]any{"expression": "x"}},
					{ID: "log", Kind: graph.KindObserver, Subtype: "log"},
				},
				Edges: []graph.Edge{
					{ID: "e1", Source: "fetch", Target: "retry2"},
					{ID: "e2", Source: "retry2", Target: "pick"},
					{ID: "e3", Source: "pick", Target: "log"},
				},
			},
			Positions: map[string]Position{
				"fetch":  {X: 80, Y: 120},
				"retry2": {X: 300, Y: 120},
				"pick":   {X: 520, Y: 120},
				"log":    {X: 740, Y: 120},
			},
		},
	}
}
