// Package graph provides the road network of the simulation: intersections,
// road segments and building stubs, held in owned maps keyed by stable integer
// ids. Every committed structural edit bumps a version counter so consumers
// can detect staleness without diffing the network.
package graph

import (
	"errors"
	"math"
	"slices"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/samber/lo"
)

// NodeID and EdgeID are stable identifiers; they are never reused.
type (
	NodeID int
	EdgeID int
)

// NodeKind classifies a node in the network.
type NodeKind string

const (
	KindIntersection NodeKind = "intersection"
	KindBuildingStub NodeKind = "building"
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrUnknownNode     = errors.New("unknown node")
	ErrUnknownEdge     = errors.New("unknown edge")
	ErrInvalidEdge     = errors.New("invalid edge")
	ErrStubOccupied    = errors.New("building stub already attached")
	ErrNoRoad          = errors.New("no road to attach to")
)

// Coordinate is a 2D position in metres.
type Coordinate struct {
	X float64 `json:"x"` // metres
	Y float64 `json:"y"` // metres
}

// Distance returns the euclidean distance between c and o.
func (c Coordinate) Distance(o Coordinate) float64 {
	return math.Hypot(o.X-c.X, o.Y-c.Y)
}

func (c Coordinate) xy() geom.XY { return geom.XY{X: c.X, Y: c.Y} }

// Node is an intersection or a building attachment point.
type Node struct {
	ID   NodeID     `json:"node_id"`
	Loc  Coordinate `json:"loc"`
	Kind NodeKind   `json:"kind"`
}

// Direction selects which way an edge is traversed.
type Direction int8

const (
	Forward Direction = iota // A → B
	Reverse                  // B → A
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Forward {
		return Reverse
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// Edge is a bidirectional road segment between two nodes.
type Edge struct {
	ID         EdgeID  `json:"edge_id"`
	A          NodeID  `json:"a"`
	B          NodeID  `json:"b"`
	Length     float64 `json:"length"`      // metres
	Lanes      int     `json:"lanes"`       // lanes per direction
	Capacity   int     `json:"capacity"`    // vehicles that fit queued on the segment
	SpeedLimit float64 `json:"speed_limit"` // m/s

	line   geom.LineString
	pa, pb Coordinate // endpoint positions when the edge was built
}

// Start returns the node a vehicle travelling in direction d enters from.
func (e Edge) Start(d Direction) NodeID {
	if d == Forward {
		return e.A
	}
	return e.B
}

// End returns the node a vehicle travelling in direction d leaves toward.
func (e Edge) End(d Direction) NodeID {
	if d == Forward {
		return e.B
	}
	return e.A
}

// Other returns the endpoint opposite n.
func (e Edge) Other(n NodeID) NodeID {
	if e.A == n {
		return e.B
	}
	return e.A
}

// Touches reports whether n is one of the edge's endpoints.
func (e Edge) Touches(n NodeID) bool { return e.A == n || e.B == n }

// DirectionFrom returns the direction that leaves node n along the edge.
func (e Edge) DirectionFrom(n NodeID) Direction {
	if e.A == n {
		return Forward
	}
	return Reverse
}

// Line returns the segment geometry.
func (e Edge) Line() geom.LineString { return e.line }

// At returns the position dist metres along e travelling in d. It only uses
// the edge's own geometry, so it also works for segments that have since been
// removed.
func (e Edge) At(d Direction, dist float64) Coordinate {
	from, to := e.pa, e.pb
	if d == Reverse {
		from, to = to, from
	}
	if e.Length <= 0 {
		return from
	}
	t := math.Min(math.Max(dist/e.Length, 0), 1)
	return Coordinate{X: from.X + (to.X-from.X)*t, Y: from.Y + (to.Y-from.Y)*t}
}

// Options configures metadata derived for new edges.
type Options struct {
	SpeedLimit float64 // nominal speed for new segments, m/s
	Spacing    float64 // road length one queued vehicle occupies, metres
	SnapRadius float64 // AttachBuilding snaps to an intersection within this distance
	MaxChanges int     // number of commits kept for ChangesSince
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		SpeedLimit: 13.9,
		Spacing:    7.5,
		SnapRadius: 2,
		MaxChanges: 256,
	}
}

// Graph is the mutable road network.
type Graph struct {
	opts     Options
	nodes    map[NodeID]Node
	edges    map[EdgeID]Edge
	adj      map[NodeID][]EdgeID // incident edges, ascending
	nextNode NodeID
	nextEdge EdgeID
	version  uint64
	changes  []Change
	pending  *Change // non-nil while an edit batch is open
}

// NewGraph returns an empty graph.
func NewGraph(opts Options) *Graph {
	if opts.MaxChanges <= 0 {
		opts.MaxChanges = DefaultOptions().MaxChanges
	}
	return &Graph{
		opts:     opts,
		nodes:    make(map[NodeID]Node),
		edges:    make(map[EdgeID]Edge),
		adj:      make(map[NodeID][]EdgeID),
		nextNode: 1,
		nextEdge: 1,
	}
}

// Version returns the number of committed structural edits.
func (g *Graph) Version() uint64 { return g.version }

// Node looks up a node by id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id EdgeID) (Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// HasEdge reports whether the edge is live.
func (g *Graph) HasEdge(id EdgeID) bool {
	_, ok := g.edges[id]
	return ok
}

// HasNode reports whether the node is live.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Incident returns the ids of the edges touching n in ascending order.
func (g *Graph) Incident(n NodeID) []EdgeID {
	return slices.Clone(g.adj[n])
}

// Degree returns the number of edges touching n.
func (g *Graph) Degree(n NodeID) int { return len(g.adj[n]) }

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []NodeID {
	ids := lo.Keys(g.nodes)
	slices.Sort(ids)
	return ids
}

// EdgeIDs returns all edge ids in ascending order.
func (g *Graph) EdgeIDs() []EdgeID {
	ids := lo.Keys(g.edges)
	slices.Sort(ids)
	return ids
}

// Nodes returns every node in ascending id order.
func (g *Graph) Nodes() []Node {
	return lo.Map(g.NodeIDs(), func(id NodeID, _ int) Node { return g.nodes[id] })
}

// Edges returns every edge in ascending id order.
func (g *Graph) Edges() []Edge {
	return lo.Map(g.EdgeIDs(), func(id EdgeID, _ int) Edge { return g.edges[id] })
}

// Stubs returns the building stub ids in ascending order.
func (g *Graph) Stubs() []NodeID {
	return lo.Filter(g.NodeIDs(), func(id NodeID, _ int) bool {
		return g.nodes[id].Kind == KindBuildingStub
	})
}

// Intersections returns the intersection ids in ascending order.
func (g *Graph) Intersections() []NodeID {
	return lo.Filter(g.NodeIDs(), func(id NodeID, _ int) bool {
		return g.nodes[id].Kind == KindIntersection
	})
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// PointAt returns the world position at dist metres along e travelling in d.
func (g *Graph) PointAt(e Edge, d Direction, dist float64) Coordinate {
	return e.At(d, dist)
}

// Heading returns the travel angle in radians of e in direction d.
func (g *Graph) Heading(e Edge, d Direction) float64 {
	from := g.nodes[e.Start(d)].Loc
	to := g.nodes[e.End(d)].Loc
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}

// Clone returns a deep copy of the graph, change log included.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		opts:     g.opts,
		nextNode: g.nextNode,
		nextEdge: g.nextEdge,
		version:  g.version,
		changes:  slices.Clone(g.changes),
	}
	c.restore(g.save())
	return c
}
