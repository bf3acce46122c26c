package vehicle

import (
	"cmp"
	"slices"

	"github.com/cxd309/citysim-engine/internal/graph"
)

type lane struct {
	edge graph.EdgeID
	dir  graph.Direction
}

type slot struct {
	lane lane
	pos  int
}

// Index groups the vehicles on the road by (segment, direction), front
// vehicle first, and remembers each vehicle's slot so the vehicle ahead is
// one step away. It is rebuilt at the start of every tick. Vehicles never
// overtake within a lane, so the order stays valid while they move; vehicles
// that leave a lane are skipped on lookup, vehicles that enter one at its
// start are appended with Enter and vehicles moved mid-lane are inserted
// with Place.
type Index struct {
	lanes map[lane][]*Vehicle
	slots map[*Vehicle]slot
}

// BuildIndex indexes every vehicle currently on a road segment.
func BuildIndex(vehicles []*Vehicle) *Index {
	idx := &Index{
		lanes: make(map[lane][]*Vehicle),
		slots: make(map[*Vehicle]slot, len(vehicles)),
	}
	for _, v := range vehicles {
		if !v.OnRoad() {
			continue
		}
		k := lane{v.Edge, v.Dir}
		idx.lanes[k] = append(idx.lanes[k], v)
	}
	for k, vs := range idx.lanes {
		slices.SortFunc(vs, func(a, b *Vehicle) int {
			if c := cmp.Compare(b.Progress, a.Progress); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})
		idx.renumber(k, 0)
	}
	return idx
}

func (idx *Index) renumber(k lane, from int) {
	vs := idx.lanes[k]
	for i := from; i < len(vs); i++ {
		if idx.in(vs[i], k) {
			idx.slots[vs[i]] = slot{k, i}
		}
	}
}

func (idx *Index) in(v *Vehicle, k lane) bool {
	return v.OnRoad() && v.Edge == k.edge && v.Dir == k.dir
}

// live reports whether entry i of lane k is where its vehicle currently is.
func (idx *Index) live(k lane, i int) bool {
	v := idx.lanes[k][i]
	return idx.in(v, k) && idx.slots[v] == slot{k, i}
}

// Leader returns the nearest vehicle ahead of v in its lane.
func (idx *Index) Leader(v *Vehicle) (*Vehicle, bool) {
	if idx == nil {
		return nil, false
	}
	k := lane{v.Edge, v.Dir}
	s, ok := idx.slots[v]
	if !ok || s.lane != k {
		return nil, false
	}
	vs := idx.lanes[k]
	for i := s.pos - 1; i >= 0; i-- {
		if idx.live(k, i) {
			return vs[i], true
		}
	}
	return nil, false
}

// Rearmost returns the vehicle closest to the entry of the lane.
func (idx *Index) Rearmost(edge graph.EdgeID, dir graph.Direction) (*Vehicle, bool) {
	if idx == nil {
		return nil, false
	}
	k := lane{edge, dir}
	vs := idx.lanes[k]
	for i := len(vs) - 1; i >= 0; i-- {
		if idx.live(k, i) {
			return vs[i], true
		}
	}
	return nil, false
}

// EntryClear reports whether a vehicle may enter the lane at progress 0
// while keeping minGap to the vehicle ahead.
func (idx *Index) EntryClear(edge graph.EdgeID, dir graph.Direction, minGap float64) bool {
	if idx == nil {
		return true
	}
	r, ok := idx.Rearmost(edge, dir)
	return !ok || r.Progress >= minGap
}

// Enter records v at the rear of the lane it now occupies.
func (idx *Index) Enter(v *Vehicle) {
	if idx == nil {
		return
	}
	k := lane{v.Edge, v.Dir}
	idx.lanes[k] = append(idx.lanes[k], v)
	idx.slots[v] = slot{k, len(idx.lanes[k]) - 1}
}

// Place records v in the lane it now occupies, behind every vehicle further
// along and ahead of the rest.
func (idx *Index) Place(v *Vehicle) {
	if idx == nil {
		return
	}
	k := lane{v.Edge, v.Dir}
	vs := idx.lanes[k]
	at := len(vs)
	for i, w := range vs {
		if idx.live(k, i) && w.Progress < v.Progress {
			at = i
			break
		}
	}
	idx.lanes[k] = slices.Insert(vs, at, v)
	idx.renumber(k, at)
}

// Lane returns the vehicles still in a lane, rearmost first.
func (idx *Index) Lane(edge graph.EdgeID, dir graph.Direction) []*Vehicle {
	if idx == nil {
		return nil
	}
	k := lane{edge, dir}
	vs := idx.lanes[k]
	var out []*Vehicle
	for i := len(vs) - 1; i >= 0; i-- {
		if idx.live(k, i) {
			out = append(out, vs[i])
		}
	}
	return out
}
