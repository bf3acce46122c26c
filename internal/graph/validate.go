package graph

import (
	"fmt"
	"slices"
)

// Validate checks the structural invariants: every segment's endpoints are
// live, each node's adjacency list is exactly the ascending set of segments
// touching it, and every building stub has exactly one road.
func (g *Graph) Validate() error {
	want := make(map[NodeID][]EdgeID, len(g.nodes))
	for _, id := range g.EdgeIDs() {
		e := g.edges[id]
		if e.ID != id {
			return fmt.Errorf("edge %d stored under id %d", e.ID, id)
		}
		if _, ok := g.nodes[e.A]; !ok {
			return fmt.Errorf("edge %d: endpoint %d: %w", id, e.A, ErrUnknownNode)
		}
		if _, ok := g.nodes[e.B]; !ok {
			return fmt.Errorf("edge %d: endpoint %d: %w", id, e.B, ErrUnknownNode)
		}
		if e.A == e.B || e.Lanes < 1 {
			return fmt.Errorf("edge %d: %w", id, ErrInvalidEdge)
		}
		want[e.A] = append(want[e.A], id)
		want[e.B] = append(want[e.B], id)
	}
	for n, ids := range g.adj {
		if _, ok := g.nodes[n]; !ok && len(ids) > 0 {
			return fmt.Errorf("adjacency for removed node %d", n)
		}
	}
	for id, n := range g.nodes {
		if !slices.Equal(g.adj[id], want[id]) {
			return fmt.Errorf("node %d: adjacency %v, want %v", id, g.adj[id], want[id])
		}
		if n.Kind == KindBuildingStub && len(want[id]) > 1 {
			return fmt.Errorf("node %d: %d roads: %w", id, len(want[id]), ErrStubOccupied)
		}
		if n.Kind == KindBuildingStub && len(want[id]) == 0 {
			return fmt.Errorf("building stub %d has no road", id)
		}
	}
	return nil
}
