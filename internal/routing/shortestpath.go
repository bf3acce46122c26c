package routing

import (
	"container/heap"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// shortestPath runs Dijkstra from origin to dest. Incident edges are relaxed
// in ascending id order, labels are only replaced by strictly shorter
// distances, and queue ties pop in insertion order, so among equal-weight
// routes the first one discovered wins. Building stubs other than the
// origin are never expanded.
func (r *Router) shortestPath(origin, dest graph.NodeID) ([]Step, bool) {
	dist := map[graph.NodeID]float64{origin: 0}
	prev := make(map[graph.NodeID]Step)
	settled := make(map[graph.NodeID]bool)

	pq := &queue{}
	var seq int
	heap.Push(pq, &item{node: origin, dist: 0, seq: seq})

	for pq.Len() > 0 {
		it := heap.Pop(pq).(*item)
		u := it.node
		if settled[u] {
			continue
		}
		settled[u] = true
		if u == dest {
			break
		}
		if n, _ := r.graph.Node(u); u != origin && n.Kind == graph.KindBuildingStub {
			continue
		}
		for _, eid := range r.graph.Incident(u) {
			e, _ := r.graph.Edge(eid)
			v := e.Other(u)
			if settled[v] {
				continue
			}
			alt := dist[u] + r.weight(e)
			if old, ok := dist[v]; ok && alt >= old {
				continue
			}
			dist[v] = alt
			prev[v] = Step{Edge: eid, Dir: e.DirectionFrom(u)}
			seq++
			heap.Push(pq, &item{node: v, dist: alt, seq: seq})
		}
	}

	if !settled[dest] {
		return nil, false
	}
	var steps []Step
	for u := dest; u != origin; {
		s := prev[u]
		steps = append(steps, s)
		e, _ := r.graph.Edge(s.Edge)
		u = e.Start(s.Dir)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, true
}

// weight is the routing cost of a segment: its length, scaled up for
// narrow roads when a lane penalty is configured.
func (r *Router) weight(e graph.Edge) float64 {
	if r.opts.LanePenalty <= 0 {
		return e.Length
	}
	return e.Length * (1 + r.opts.LanePenalty/float64(e.Lanes))
}

// ---------- internal PQ ----------
type item struct {
	node graph.NodeID
	dist float64
	seq  int
}

type queue []*item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
