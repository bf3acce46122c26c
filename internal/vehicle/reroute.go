package vehicle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/routing"
)

// ErrEntryBlocked means a re-routed vehicle had nowhere to stand.
var ErrEntryBlocked = errors.New("entry blocked")

// Edits describes the road edits a reroute reacts to.
type Edits struct {
	Retired map[graph.EdgeID]graph.Edge // removed segments as they were
	Added   []graph.EdgeID              // live segments created by the edits
}

// NewEdits collects the retired and still-live added segments of changes.
func NewEdits(g *graph.Graph, changes []graph.Change) *Edits {
	ed := &Edits{Retired: make(map[graph.EdgeID]graph.Edge)}
	for _, ch := range changes {
		for _, e := range ch.Retired {
			ed.Retired[e.ID] = e
		}
		for _, id := range ch.AddedEdges {
			if g.HasEdge(id) {
				ed.Added = append(ed.Added, id)
			}
		}
	}
	return ed
}

// Reroute replaces the vehicle's path after a graph edit.
//
// A vehicle whose segment was replaced by new segments over the same road
// (a split or an extension) is moved onto the one under it, keeping its
// position. While the current segment exists the vehicle keeps driving it and
// the new route starts at its far endpoint. Otherwise the vehicle is moved
// to the start of a route from the node it entered by. When no route exists
// the vehicle is despawned and the routing error returned.
func (v *Vehicle) Reroute(g *graph.Graph, pf PathFinder, idx *Index, minGap float64, ed *Edits) error {
	if !v.OnRoad() {
		return nil
	}
	dest := v.Path.Destination
	if !g.HasEdge(v.Edge) && v.relocate(g, ed) {
		idx.Place(v)
	}

	if e, ok := g.Edge(v.Edge); ok {
		far := e.End(v.Dir)
		step := routing.Step{Edge: v.Edge, Dir: v.Dir}
		if n, ok := g.Node(far); ok && far == dest && n.Kind == graph.KindBuildingStub {
			v.Path = prepend(step, e.Length, v.entry, routing.Path{Destination: dest})
			v.Cursor = 0
			return nil
		}
		rest, err := pf.FindPathFrom(far, dest)
		if err != nil {
			v.Despawn()
			return fmt.Errorf("vehicle %d: reroute from %d: %w", v.ID, far, err)
		}
		v.Path = prepend(step, e.Length, v.entry, rest)
		v.Cursor = 0
		return nil
	}

	p, err := pf.FindPathFrom(v.entry, dest)
	if err != nil {
		v.Despawn()
		return fmt.Errorf("vehicle %d: reroute from %d: %w", v.ID, v.entry, err)
	}
	first := p.Steps[0]
	if !idx.EntryClear(first.Edge, first.Dir, minGap) {
		v.Despawn()
		return fmt.Errorf("vehicle %d: edge %d: %w", v.ID, first.Edge, ErrEntryBlocked)
	}
	v.Path = p
	v.enter(0, p.Origin)
	v.Speed = 0
	v.State = StateCruising
	idx.Enter(v)
	return nil
}

// relocate moves the vehicle from its removed segment onto the added segment
// now covering the same position.
func (v *Vehicle) relocate(g *graph.Graph, ed *Edits) bool {
	if ed == nil {
		return false
	}
	old, ok := ed.Retired[v.Edge]
	if !ok {
		return false
	}
	e, dir, progress, ok := g.Relocate(old, v.Dir, v.Progress, ed.Added)
	if !ok {
		return false
	}
	v.Edge, v.Dir, v.Progress = e.ID, dir, progress
	v.entry = e.Start(dir)
	if v.State == StateAtIntersection && progress < e.Length-endEpsilon {
		v.State = StateCruising
	}
	return true
}

// prepend returns rest with step (of the given length, entered from origin)
// in front of it.
func prepend(step routing.Step, length float64, origin graph.NodeID, rest routing.Path) routing.Path {
	p := routing.Path{
		Origin:      origin,
		Destination: rest.Destination,
		Steps:       slices.Insert(slices.Clone(rest.Steps), 0, step),
		Cumulative:  make([]float64, 0, len(rest.Cumulative)+1),
	}
	p.Cumulative = append(p.Cumulative, length)
	for _, c := range rest.Cumulative {
		p.Cumulative = append(p.Cumulative, length+c)
	}
	return p
}
