package graph

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/samber/lo"
)

// Region is an axis-aligned rectangle in world coordinates.
type Region struct {
	Min Coordinate
	Max Coordinate
}

// EmptyRegion returns a region containing nothing.
func EmptyRegion() Region {
	return Region{
		Min: Coordinate{X: math.Inf(1), Y: math.Inf(1)},
		Max: Coordinate{X: math.Inf(-1), Y: math.Inf(-1)},
	}
}

// NewRegion returns the rectangle spanned by two corners.
func NewRegion(a, b Coordinate) Region {
	return EmptyRegion().Include(a).Include(b)
}

// RegionAround returns the square of half-width r centred on c.
func RegionAround(c Coordinate, r float64) Region {
	return NewRegion(Coordinate{X: c.X - r, Y: c.Y - r}, Coordinate{X: c.X + r, Y: c.Y + r})
}

// Empty reports whether the region contains no points.
func (r Region) Empty() bool { return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y }

// Include grows r to contain c.
func (r Region) Include(c Coordinate) Region {
	r.Min.X = math.Min(r.Min.X, c.X)
	r.Min.Y = math.Min(r.Min.Y, c.Y)
	r.Max.X = math.Max(r.Max.X, c.X)
	r.Max.Y = math.Max(r.Max.Y, c.Y)
	return r
}

// Union returns the smallest region containing r and o.
func (r Region) Union(o Region) Region {
	if o.Empty() {
		return r
	}
	return r.Include(o.Min).Include(o.Max)
}

func (r Region) envelope() geom.Envelope {
	return geom.NewEnvelope(r.Min.xy(), r.Max.xy())
}

// EdgesTouchedBy returns the ids of live segments intersecting r, ascending.
func (g *Graph) EdgesTouchedBy(r Region) []EdgeID {
	if r.Empty() {
		return nil
	}
	area := r.envelope().AsGeometry()
	return lo.Filter(g.EdgeIDs(), func(id EdgeID, _ int) bool {
		return geom.Intersects(area, g.edges[id].line.AsGeometry())
	})
}

// NearestEdge returns the segment closest to loc; ties go to the lowest id.
func (g *Graph) NearestEdge(loc Coordinate) (EdgeID, bool) {
	return g.nearestEdge(loc)
}

func (g *Graph) nearestEdge(loc Coordinate) (EdgeID, bool) {
	pt := geom.NewPoint(geom.Coordinates{XY: loc.xy(), Type: geom.DimXY}).AsGeometry()
	var (
		best  EdgeID
		found bool
		bestD = math.Inf(1)
	)
	for _, id := range g.EdgeIDs() {
		d, ok := geom.Distance(pt, g.edges[id].line.AsGeometry())
		if ok && d < bestD {
			best, bestD, found = id, d, true
		}
	}
	return best, found
}

// relocateTolerance is how far, in metres, a position may sit off a segment
// and still count as lying on it.
const relocateTolerance = 1e-6

// Relocate maps a position on a removed segment onto the live segment that
// now runs over the same stretch of road. old is the segment as it was
// removed (see Change.Retired), d the direction of travel and dist the
// distance from its start. Only segments in candidates that are collinear with
// old and pass through the position are considered; of those the one leaving
// the most road ahead wins, ties to the lowest id. The result is the segment,
// the matching direction and the distance from that segment's start.
func (g *Graph) Relocate(old Edge, d Direction, dist float64, candidates []EdgeID) (Edge, Direction, float64, bool) {
	if old.Length <= 0 {
		return Edge{}, Forward, 0, false
	}
	p := old.At(d, dist)
	from, to := old.At(d, 0), old.At(d, old.Length)
	ux, uy := (to.X-from.X)/old.Length, (to.Y-from.Y)/old.Length

	var (
		best      Edge
		bestDir   Direction
		bestDist  float64
		bestAhead = math.Inf(-1)
	)
	for _, id := range candidates {
		e, ok := g.edges[id]
		if !ok || e.Length <= 0 {
			continue
		}
		vx, vy := (e.pb.X-e.pa.X)/e.Length, (e.pb.Y-e.pa.Y)/e.Length
		if math.Abs(ux*vy-uy*vx) > relocateTolerance {
			continue
		}
		proj, t := project(p, e.pa, e.pb)
		if proj.Distance(p) > relocateTolerance {
			continue
		}
		dir, along := Forward, t*e.Length
		if ux*vx+uy*vy < 0 {
			dir, along = Reverse, (1-t)*e.Length
		}
		ahead := e.Length - along
		if ahead > bestAhead || (ahead == bestAhead && e.ID < best.ID) {
			best, bestDir, bestDist, bestAhead = e, dir, along, ahead
		}
	}
	if math.IsInf(bestAhead, -1) {
		return Edge{}, Forward, 0, false
	}
	return best, bestDir, bestDist, true
}
