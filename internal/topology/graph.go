package topology

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ShortestPath returns the hostnames along a shortest path from a to b,
// both inclusive, counting every link as one hop. Ties between equally
// long paths are broken arbitrarily.
func (t *Topology) ShortestPath(a, b string) ([]string, bool) {
	from, okA := t.ids[a]
	to, okB := t.ids[b]
	if !okA || !okB {
		return nil, false
	}
	if from == to {
		return []string{a}, true
	}

	// every link has unit weight, so Dijkstra over the undirected graph
	// minimises the hop count
	tree := path.DijkstraFrom(simple.Node(from), t.graph)
	nodes, weight := tree.To(to)
	if len(nodes) == 0 || math.IsInf(weight, 1) {
		return nil, false
	}

	hops := make([]string, 0, len(nodes))
	for _, n := range nodes {
		hops = append(hops, t.hostnames[n.ID()])
	}
	return hops, true
}

// HopCount is the number of links on the shortest path from a to b.
func (t *Topology) HopCount(a, b string) (int, bool) {
	hops, ok := t.ShortestPath(a, b)
	if !ok {
		return 0, false
	}
	return len(hops) - 1, true
}
