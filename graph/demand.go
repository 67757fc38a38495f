package graph

// ComputeDemand returns, for every node, the number of independent
// sink-reachable consumers: observer sinks count 1 for themselves, every
// other node sums the demand of its downstream targets. The count equals
// the number of distinct paths from the node to observer sinks, which is
// exactly how many independent subscriptions the multiplexer will open
// against that node's producer.
//
// The walk is an explicit reverse-topological pass over the resolved
// adjacency, so cyclic remnants (already excluded from the order) simply
// stay at demand zero.
func ComputeDemand(g *Graph, r *Resolution) map[string]int {
	nodes := g.NodeMap()
	demand := make(map[string]int, len(g.Nodes))

	order := r.Order()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		node := nodes[id]

		if node.Kind == KindObserver {
			// A sink always demands exactly one subscription of its own
			demand[id] = 1
			continue
		}

		total := 0
		for _, down := range r.Downstreams(id) {
			total += demand[down]
		}
		demand[id] = total
	}

	return demand
}
