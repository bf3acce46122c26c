// Package routing computes shortest paths between building stubs over the
// road graph.
package routing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// ErrNotReachable is a routing outcome, not a failure: the destination is not
// connected to the origin.
var ErrNotReachable = errors.New("destination not reachable")

// Step is one segment of a path and the direction it is driven in.
type Step struct {
	Edge graph.EdgeID    `json:"edge"`
	Dir  graph.Direction `json:"dir"`
}

// Path is an ordered list of steps from Origin to Destination.
// Cumulative[i] is the distance driven at the end of step i.
type Path struct {
	Origin      graph.NodeID `json:"origin"`
	Destination graph.NodeID `json:"destination"`
	Steps       []Step       `json:"steps"`
	Cumulative  []float64    `json:"cumulative"`
}

// Length returns the total driven distance in metres.
func (p Path) Length() float64 {
	if len(p.Cumulative) == 0 {
		return 0
	}
	return p.Cumulative[len(p.Cumulative)-1]
}

// Edges returns the edge ids of the path in order.
func (p Path) Edges() []graph.EdgeID {
	ids := make([]graph.EdgeID, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.Edge
	}
	return ids
}

// Clone returns a copy that shares no memory with p.
func (p Path) Clone() Path {
	p.Steps = slices.Clone(p.Steps)
	p.Cumulative = slices.Clone(p.Cumulative)
	return p
}

// Options tunes edge weights.
type Options struct {
	// LanePenalty scales a segment's weight by (1 + LanePenalty/lanes).
	// Zero routes on length alone.
	LanePenalty float64
}

type pathKey struct{ origin, dest graph.NodeID }

// Router answers path queries against the graph as it is at call time.
// Results are cached until the graph version changes.
type Router struct {
	graph   *graph.Graph
	opts    Options
	cache   map[pathKey]Path
	version uint64
}

// New returns a router over g.
func New(g *graph.Graph, opts Options) *Router {
	return &Router{
		graph:   g,
		opts:    opts,
		cache:   make(map[pathKey]Path),
		version: g.Version(),
	}
}

// FindPath routes between two building stubs.
func (r *Router) FindPath(origin, dest graph.NodeID) (Path, error) {
	n, ok := r.graph.Node(origin)
	if !ok {
		return Path{}, fmt.Errorf("find path: origin %d: %w", origin, graph.ErrUnknownNode)
	}
	if n.Kind != graph.KindBuildingStub {
		return Path{}, fmt.Errorf("find path: origin %d is not a building stub: %w", origin, graph.ErrInvalidEndpoint)
	}
	return r.FindPathFrom(origin, dest)
}

// FindPathFrom routes from any node to a destination stub.
func (r *Router) FindPathFrom(origin, dest graph.NodeID) (Path, error) {
	if !r.graph.HasNode(origin) {
		return Path{}, fmt.Errorf("find path: origin %d: %w", origin, graph.ErrUnknownNode)
	}
	d, ok := r.graph.Node(dest)
	if !ok || d.Kind != graph.KindBuildingStub {
		return Path{}, fmt.Errorf("find path %d -> %d: %w", origin, dest, ErrNotReachable)
	}
	if origin == dest {
		return Path{}, fmt.Errorf("find path %d -> %d: already there: %w", origin, dest, ErrNotReachable)
	}

	if v := r.graph.Version(); v != r.version {
		clear(r.cache)
		r.version = v
	}
	key := pathKey{origin, dest}
	if p, ok := r.cache[key]; ok {
		return p.Clone(), nil
	}

	steps, ok := r.shortestPath(origin, dest)
	if !ok {
		return Path{}, fmt.Errorf("find path %d -> %d: %w", origin, dest, ErrNotReachable)
	}
	p := Path{Origin: origin, Destination: dest, Steps: steps, Cumulative: make([]float64, len(steps))}
	var total float64
	for i, s := range steps {
		e, _ := r.graph.Edge(s.Edge)
		total += e.Length
		p.Cumulative[i] = total
	}
	r.cache[key] = p
	return p.Clone(), nil
}
