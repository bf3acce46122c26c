package graph

import (
	"fmt"
	"maps"
	"math"
	"slices"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Change describes one committed edit batch.
type Change struct {
	Version      uint64
	Region       Region // covers every node and segment the batch touched
	AddedNodes   []NodeID
	RemovedNodes []NodeID
	AddedEdges   []EdgeID
	RemovedEdges []EdgeID
	Retired      []Edge // removed segments as they were before removal

	orphaned []NodeID // stubs that lost their edge during the batch
}

func (c *Change) empty() bool {
	return len(c.AddedNodes) == 0 && len(c.RemovedNodes) == 0 &&
		len(c.AddedEdges) == 0 && len(c.RemovedEdges) == 0
}

type state struct {
	nodes    map[NodeID]Node
	edges    map[EdgeID]Edge
	adj      map[NodeID][]EdgeID
	nextNode NodeID
	nextEdge EdgeID
}

func (g *Graph) save() state {
	adj := make(map[NodeID][]EdgeID, len(g.adj))
	for n, ids := range g.adj {
		adj[n] = slices.Clone(ids)
	}
	return state{
		nodes:    maps.Clone(g.nodes),
		edges:    maps.Clone(g.edges),
		adj:      adj,
		nextNode: g.nextNode,
		nextEdge: g.nextEdge,
	}
}

func (g *Graph) restore(s state) {
	g.nodes = s.nodes
	g.edges = s.edges
	g.adj = s.adj
	g.nextNode = s.nextNode
	g.nextEdge = s.nextEdge
	if g.nodes == nil {
		g.nodes = make(map[NodeID]Node)
	}
	if g.edges == nil {
		g.edges = make(map[EdgeID]Edge)
	}
	if g.adj == nil {
		g.adj = make(map[NodeID][]EdgeID)
	}
}

// apply runs a single validated edit. Outside a batch it commits immediately;
// inside one it joins the open change.
func (g *Graph) apply(fn func(c *Change) error) error {
	if g.pending != nil {
		return fn(g.pending)
	}
	c := &Change{Region: EmptyRegion()}
	g.pending = c
	err := fn(c)
	g.pending = nil
	if err != nil {
		return err
	}
	g.commit(c)
	return nil
}

// Batch applies every edit made by fn as a single commit with one version
// bump. If fn returns an error the graph is restored to its state before the
// batch and the version is unchanged. Nested batches join the outer one.
func (g *Graph) Batch(fn func(g *Graph) error) error {
	if g.pending != nil {
		return fn(g)
	}
	saved := g.save()
	c := &Change{Region: EmptyRegion()}
	g.pending = c
	err := fn(g)
	g.pending = nil
	if err != nil {
		g.restore(saved)
		return err
	}
	g.commit(c)
	return nil
}

// commit closes a change. Building stubs without a road do not survive it:
// stubs added by the change are dropped as if never created, older ones are
// removed.
func (g *Graph) commit(c *Change) {
	for _, n := range slices.Concat(c.orphaned, c.AddedNodes) {
		node, ok := g.nodes[n]
		if !ok || node.Kind != KindBuildingStub || len(g.adj[n]) > 0 {
			continue
		}
		if slices.Contains(c.AddedNodes, n) {
			delete(g.nodes, n)
			delete(g.adj, n)
			c.AddedNodes = slices.DeleteFunc(c.AddedNodes, func(x NodeID) bool { return x == n })
			continue
		}
		g.removeNode(n, c)
	}
	c.orphaned = nil
	if c.empty() {
		return
	}
	g.version++
	c.Version = g.version
	g.changes = append(g.changes, *c)
	if over := len(g.changes) - g.opts.MaxChanges; over > 0 {
		g.changes = slices.Delete(g.changes, 0, over)
	}
}

// ChangesSince returns the commits made after version v, oldest first. The
// boolean is false when older commits have been discarded and the list does
// not cover everything since v.
func (g *Graph) ChangesSince(v uint64) ([]Change, bool) {
	if v >= g.version {
		return nil, true
	}
	i, _ := slices.BinarySearchFunc(g.changes, v+1, func(c Change, target uint64) int {
		switch {
		case c.Version < target:
			return -1
		case c.Version > target:
			return 1
		}
		return 0
	})
	out := slices.Clone(g.changes[i:])
	complete := len(out) > 0 && out[0].Version == v+1
	return out, complete
}

// AddNode creates a node at loc and returns its id. An empty kind means
// intersection. A building stub must get its road in the same Batch (or use
// AddStub); one still unattached when the edit commits is dropped.
func (g *Graph) AddNode(loc Coordinate, kind NodeKind) NodeID {
	if kind == "" {
		kind = KindIntersection
	}
	var id NodeID
	_ = g.apply(func(c *Change) error {
		id = g.nextNode
		g.nextNode++
		g.nodes[id] = Node{ID: id, Loc: loc, Kind: kind}
		c.AddedNodes = append(c.AddedNodes, id)
		c.Region = c.Region.Include(loc)
		return nil
	})
	return id
}

// AddStub creates a building stub at loc joined to node to by a one-lane
// segment running from the stub.
func (g *Graph) AddStub(loc Coordinate, to NodeID) (NodeID, EdgeID, error) {
	var (
		stub NodeID
		road EdgeID
	)
	err := g.Batch(func(g *Graph) error {
		stub = g.AddNode(loc, KindBuildingStub)
		var err error
		road, err = g.AddEdge(stub, to, 1)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("add stub: %w", err)
	}
	return stub, road, nil
}

// AddEdge connects a and b with a segment of the given lane count.
func (g *Graph) AddEdge(a, b NodeID, lanes int) (EdgeID, error) {
	if err := g.checkEdge(a, b, lanes); err != nil {
		return 0, fmt.Errorf("add edge %d-%d: %w", a, b, err)
	}
	var id EdgeID
	err := g.apply(func(c *Change) error {
		id = g.addEdge(a, b, lanes, c)
		return nil
	})
	return id, err
}

func (g *Graph) checkEdge(a, b NodeID, lanes int) error {
	na, ok := g.nodes[a]
	if !ok {
		return fmt.Errorf("node %d: %w", a, ErrInvalidEndpoint)
	}
	nb, ok := g.nodes[b]
	if !ok {
		return fmt.Errorf("node %d: %w", b, ErrInvalidEndpoint)
	}
	if a == b {
		return fmt.Errorf("self loop: %w", ErrInvalidEdge)
	}
	if lanes < 1 {
		return fmt.Errorf("%d lanes: %w", lanes, ErrInvalidEdge)
	}
	for _, n := range []Node{na, nb} {
		if n.Kind == KindBuildingStub && len(g.adj[n.ID]) > 0 {
			return fmt.Errorf("node %d: %w", n.ID, ErrStubOccupied)
		}
	}
	return nil
}

func (g *Graph) addEdge(a, b NodeID, lanes int, c *Change) EdgeID {
	la, lb := g.nodes[a].Loc, g.nodes[b].Loc
	length := la.Distance(lb)
	id := g.nextEdge
	g.nextEdge++
	g.edges[id] = Edge{
		ID:         id,
		A:          a,
		B:          b,
		Length:     length,
		Lanes:      lanes,
		Capacity:   lanes * max(1, int(math.Floor(length/math.Max(g.opts.Spacing, 1e-9)))),
		SpeedLimit: g.opts.SpeedLimit,
		line:       geom.NewLineString(geom.NewSequence([]float64{la.X, la.Y, lb.X, lb.Y}, geom.DimXY)),
		pa:         la,
		pb:         lb,
	}
	// ids only grow, so appending keeps adjacency ascending
	g.adj[a] = append(g.adj[a], id)
	g.adj[b] = append(g.adj[b], id)
	c.AddedEdges = append(c.AddedEdges, id)
	c.Region = c.Region.Include(la).Include(lb)
	return id
}

// RemoveEdge deletes a segment. A building stub left without a road is
// removed with it when the edit commits.
func (g *Graph) RemoveEdge(id EdgeID) error {
	if _, ok := g.edges[id]; !ok {
		return fmt.Errorf("remove edge %d: %w", id, ErrUnknownEdge)
	}
	return g.apply(func(c *Change) error {
		g.removeEdge(id, c)
		return nil
	})
}

func (g *Graph) removeEdge(id EdgeID, c *Change) {
	e := g.edges[id]
	delete(g.edges, id)
	for _, n := range []NodeID{e.A, e.B} {
		g.adj[n] = slices.DeleteFunc(g.adj[n], func(x EdgeID) bool { return x == id })
		if node, ok := g.nodes[n]; ok {
			c.Region = c.Region.Include(node.Loc)
			if node.Kind == KindBuildingStub && len(g.adj[n]) == 0 {
				c.orphaned = append(c.orphaned, n)
			}
		}
	}
	c.RemovedEdges = append(c.RemovedEdges, id)
	c.Retired = append(c.Retired, e)
}

// RemoveNode deletes a node after removing every segment touching it.
func (g *Graph) RemoveNode(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("remove node %d: %w", id, ErrUnknownNode)
	}
	return g.apply(func(c *Change) error {
		g.removeNode(id, c)
		return nil
	})
}

func (g *Graph) removeNode(id NodeID, c *Change) {
	for _, e := range slices.Clone(g.adj[id]) {
		g.removeEdge(e, c)
	}
	c.Region = c.Region.Include(g.nodes[id].Loc)
	delete(g.nodes, id)
	delete(g.adj, id)
	c.RemovedNodes = append(c.RemovedNodes, id)
}

// ExtendEdge replaces segment id with a longer one running from the
// original's far endpoint to newEnd. The endpoint nearer newEnd is the one
// replaced; if it is an intersection left without roads it is removed, which
// merges collinear pieces instead of leaving a redundant junction.
func (g *Graph) ExtendEdge(id EdgeID, newEnd NodeID) (EdgeID, error) {
	e, ok := g.edges[id]
	if !ok {
		return 0, fmt.Errorf("extend edge %d: %w", id, ErrUnknownEdge)
	}
	n, ok := g.nodes[newEnd]
	if !ok {
		return 0, fmt.Errorf("extend edge %d: node %d: %w", id, newEnd, ErrInvalidEndpoint)
	}
	keep, drop := e.A, e.B
	if g.nodes[e.A].Loc.Distance(n.Loc) < g.nodes[e.B].Loc.Distance(n.Loc) {
		keep, drop = e.B, e.A
	}
	if newEnd == keep || newEnd == drop {
		return 0, fmt.Errorf("extend edge %d: node %d is already an endpoint: %w", id, newEnd, ErrInvalidEdge)
	}
	if g.nodes[keep].Loc.Distance(n.Loc) <= e.Length {
		return 0, fmt.Errorf("extend edge %d: node %d does not lengthen it: %w", id, newEnd, ErrInvalidEdge)
	}
	if n.Kind == KindBuildingStub && len(g.adj[newEnd]) > 0 {
		return 0, fmt.Errorf("extend edge %d: node %d: %w", id, newEnd, ErrStubOccupied)
	}
	var out EdgeID
	err := g.apply(func(c *Change) error {
		g.removeEdge(id, c)
		out = g.addEdge(keep, newEnd, e.Lanes, c)
		if g.nodes[drop].Kind == KindIntersection && len(g.adj[drop]) == 0 {
			g.removeNode(drop, c)
		}
		return nil
	})
	return out, err
}

// AttachBuilding creates a building stub at loc and connects it to the
// nearest segment. When the closest point on that segment lies within the
// snap radius of an intersection endpoint the stub connects to it directly;
// otherwise the segment is split by a new intersection at that point.
func (g *Graph) AttachBuilding(loc Coordinate) (NodeID, error) {
	eid, ok := g.nearestEdge(loc)
	if !ok {
		return 0, fmt.Errorf("attach building at (%.1f, %.1f): %w", loc.X, loc.Y, ErrNoRoad)
	}
	var stub NodeID
	err := g.Batch(func(g *Graph) error {
		target, err := g.attachPoint(eid, loc)
		if err != nil {
			return err
		}
		stub, _, err = g.AddStub(loc, target)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("attach building at (%.1f, %.1f): %w", loc.X, loc.Y, err)
	}
	return stub, nil
}

func (g *Graph) attachPoint(eid EdgeID, loc Coordinate) (NodeID, error) {
	e := g.edges[eid]
	a, b := g.nodes[e.A], g.nodes[e.B]
	proj, t := project(loc, a.Loc, b.Loc)
	snap := g.opts.SnapRadius
	switch {
	case a.Kind == KindIntersection && proj.Distance(a.Loc) <= snap:
		return a.ID, nil
	case b.Kind == KindIntersection && proj.Distance(b.Loc) <= snap:
		return b.ID, nil
	}
	// keep the split point off the endpoints
	if e.Length > 2*snap {
		t = math.Min(math.Max(t, snap/e.Length), 1-snap/e.Length)
	} else {
		t = 0.5
	}
	mid := g.AddNode(Coordinate{X: a.Loc.X + (b.Loc.X-a.Loc.X)*t, Y: a.Loc.Y + (b.Loc.Y-a.Loc.Y)*t}, KindIntersection)
	if err := g.RemoveEdge(eid); err != nil {
		return 0, err
	}
	if _, err := g.AddEdge(e.A, mid, e.Lanes); err != nil {
		return 0, err
	}
	if _, err := g.AddEdge(mid, e.B, e.Lanes); err != nil {
		return 0, err
	}
	return mid, nil
}

// project returns the closest point to p on segment ab and its parameter t.
func project(p, a, b Coordinate) (Coordinate, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a, 0
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Min(math.Max(t, 0), 1)
	return Coordinate{X: a.X + dx*t, Y: a.Y + dy*t}, t
}
