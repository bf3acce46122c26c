package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/kinematics"
	"github.com/cxd309/citysim-engine/internal/routing"
)

type fixedSignal bool

func (f fixedSignal) MayProceed(graph.NodeID, graph.EdgeID) bool { return bool(f) }

var params = Params{MinGap: 6, MinSpeed: 2, Motion: kinematics.Instant{}}

// network is a diamond: s1 - a, then a-b directly or a-c-b, then b - s2.
// Every road has a 10 m/s limit.
type network struct {
	g                   *graph.Graph
	s1, a, b, c, s2     graph.NodeID
	in, ab, ac, cb, out graph.EdgeID
	router              *routing.Router
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	opts := graph.DefaultOptions()
	opts.SpeedLimit = 10
	n := &network{g: graph.NewGraph(opts)}
	g := n.g
	err := g.Batch(func(g *graph.Graph) error {
		n.s1 = g.AddNode(graph.Coordinate{X: -50, Y: 0}, graph.KindBuildingStub)
		n.a = g.AddNode(graph.Coordinate{X: 0, Y: 0}, graph.KindIntersection)
		n.b = g.AddNode(graph.Coordinate{X: 50, Y: 0}, graph.KindIntersection)
		n.c = g.AddNode(graph.Coordinate{X: 25, Y: 40}, graph.KindIntersection)
		n.s2 = g.AddNode(graph.Coordinate{X: 100, Y: 0}, graph.KindBuildingStub)
		for _, e := range []struct {
			out  *graph.EdgeID
			u, v graph.NodeID
		}{
			{&n.in, n.s1, n.a}, {&n.ab, n.a, n.b}, {&n.ac, n.a, n.c}, {&n.cb, n.c, n.b}, {&n.out, n.b, n.s2},
		} {
			var err error
			if *e.out, err = g.AddEdge(e.u, e.v, 1); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	n.router = routing.New(g, routing.Options{})
	return n
}

func (n *network) spawn(t *testing.T, id ID) *Vehicle {
	t.Helper()
	p, err := n.router.FindPath(n.s1, n.s2)
	require.NoError(t, err)
	v := New(id, 0)
	require.NoError(t, v.Assign(n.g, p))
	return v
}

func TestVehicle_DrivesToDestination(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	assert.Equal(t, StateCruising, v.State)
	assert.Equal(t, n.in, v.Edge)

	var states []State
	for range 15 {
		idx := BuildIndex([]*Vehicle{v})
		require.NoError(t, v.Step(n.g, fixedSignal(true), idx, params, 1))
		states = append(states, v.State)
		if v.Done() {
			break
		}
	}

	assert.Equal(t, StateArriving, v.State)
	assert.Len(t, states, 15, "three 50 m roads at 10 m/s")
	assert.Equal(t, n.out, v.Edge)
	assert.Equal(t, 50.0, v.Progress)
	assert.Equal(t, ManeuverStraight, v.Maneuver)
}

func TestVehicle_SpeedOffsetAndFloor(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.SpeedOffset = 2
	require.NoError(t, v.Step(n.g, fixedSignal(true), nil, params, 1))
	assert.InDelta(t, 12.0, v.Speed, 1e-9)

	w := n.spawn(t, 2)
	w.SpeedOffset = -20
	require.NoError(t, w.Step(n.g, fixedSignal(true), nil, params, 1))
	assert.InDelta(t, params.MinSpeed, w.Speed, 1e-9)
}

func TestVehicle_HoldsAtRedSignal(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	for range 8 {
		require.NoError(t, v.Step(n.g, fixedSignal(false), nil, params, 1))
	}
	assert.Equal(t, StateAtIntersection, v.State)
	assert.Equal(t, n.in, v.Edge)
	assert.Equal(t, 50.0, v.Progress)
	assert.Zero(t, v.Speed)

	require.NoError(t, v.Step(n.g, fixedSignal(true), nil, params, 1))
	assert.Equal(t, StateCruising, v.State)
	assert.Equal(t, n.ab, v.Edge)
	assert.Zero(t, v.Progress)
}

func TestVehicle_KeepsGapToLeader(t *testing.T) {
	n := newNetwork(t)
	leader := n.spawn(t, 1)
	leader.Progress = 15
	follower := n.spawn(t, 2)

	idx := BuildIndex([]*Vehicle{follower, leader})
	require.NoError(t, follower.Step(n.g, fixedSignal(true), idx, params, 1))
	assert.InDelta(t, 9.0, follower.Progress, 1e-9)
	assert.InDelta(t, 9.0, follower.Speed, 1e-9)
}

func TestVehicle_WaitsForClearEntry(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.Progress = 45

	blocker := n.spawn(t, 2)
	blocker.enter(1, n.a)
	blocker.Progress = 3

	idx := BuildIndex([]*Vehicle{v, blocker})
	require.NoError(t, v.Step(n.g, fixedSignal(true), idx, params, 1))
	assert.Equal(t, StateAtIntersection, v.State)
	assert.Equal(t, n.in, v.Edge)

	blocker.Progress = 6
	require.NoError(t, v.Step(n.g, fixedSignal(true), idx, params, 1))
	assert.Equal(t, n.ab, v.Edge)
}

func TestVehicle_SameTickEntriesKeepGap(t *testing.T) {
	n := newNetwork(t)
	first := n.spawn(t, 1)
	first.Progress = 49
	second := n.spawn(t, 2)
	second.Progress = 43

	idx := BuildIndex([]*Vehicle{first, second})
	require.NoError(t, first.Step(n.g, fixedSignal(true), idx, params, 1))
	require.NoError(t, second.Step(n.g, fixedSignal(true), idx, params, 1))

	assert.Equal(t, n.ab, first.Edge)
	assert.Equal(t, n.in, second.Edge, "entry is occupied by the vehicle that just crossed")
	assert.Equal(t, StateAtIntersection, second.State)
}

func TestVehicle_UTurn(t *testing.T) {
	n := newNetwork(t)
	v := New(1, 0)
	p := routing.Path{
		Origin:      n.s1,
		Destination: n.s1,
		Steps: []routing.Step{
			{Edge: n.in, Dir: graph.Forward},
			{Edge: n.in, Dir: graph.Reverse},
		},
		Cumulative: []float64{50, 100},
	}
	require.NoError(t, v.Assign(n.g, p))
	v.Progress = 45

	require.NoError(t, v.Step(n.g, fixedSignal(true), nil, params, 1))
	assert.Equal(t, StateUturning, v.State)
	assert.Equal(t, ManeuverUTurn, v.Maneuver)
	assert.Equal(t, graph.Reverse, v.Dir)

	require.NoError(t, v.Step(n.g, fixedSignal(true), nil, params, 1))
	assert.Equal(t, StateCruising, v.State)
	assert.InDelta(t, 10.0, v.Progress, 1e-9)
}

func TestVehicle_StalePath(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	assert.True(t, v.PathValid(n.g))

	require.NoError(t, n.g.RemoveEdge(n.ab))
	assert.False(t, v.PathValid(n.g))
	err := v.Step(n.g, fixedSignal(true), nil, params, 1)
	assert.ErrorIs(t, err, ErrStalePath)
	assert.Zero(t, v.Progress)
}

func TestVehicle_RerouteKeepsCurrentEdge(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.Progress = 20
	require.NoError(t, n.g.RemoveEdge(n.ab))

	require.NoError(t, v.Reroute(n.g, n.router, nil, params.MinGap, nil))
	assert.True(t, v.PathValid(n.g))
	assert.Equal(t, []graph.EdgeID{n.in, n.ac, n.cb, n.out}, v.Path.Edges())
	assert.Equal(t, n.s1, v.Path.Origin)
	assert.Equal(t, 20.0, v.Progress)
	assert.Equal(t, StateCruising, v.State)
	assert.InDelta(t, 50+47.17+47.17+50, v.Path.Length(), 0.01)
}

func TestVehicle_RerouteFromEntryNode(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.enter(1, n.a)
	v.Progress = 30
	require.NoError(t, n.g.RemoveEdge(n.ab))

	require.NoError(t, v.Reroute(n.g, n.router, BuildIndex([]*Vehicle{v}), params.MinGap, nil))
	assert.Equal(t, []graph.EdgeID{n.ac, n.cb, n.out}, v.Path.Edges())
	assert.Equal(t, n.ac, v.Edge)
	assert.Zero(t, v.Progress)
	assert.True(t, v.PathValid(n.g))
}

func TestVehicle_RerouteEntryBlocked(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.enter(1, n.a)
	v.Progress = 30

	blocker := n.spawn(t, 2)
	require.NoError(t, n.g.RemoveEdge(n.ab))
	blocker.Path, _ = n.router.FindPathFrom(n.a, n.s2)
	blocker.enter(0, n.a)
	blocker.Progress = 2

	err := v.Reroute(n.g, n.router, BuildIndex([]*Vehicle{v, blocker}), params.MinGap, nil)
	assert.ErrorIs(t, err, ErrEntryBlocked)
	assert.Equal(t, StateDespawned, v.State)
}

func TestVehicle_RerouteFailureDespawns(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	require.NoError(t, n.g.RemoveNode(n.s2))

	err := v.Reroute(n.g, n.router, nil, params.MinGap, nil)
	assert.ErrorIs(t, err, routing.ErrNotReachable)
	assert.Equal(t, StateDespawned, v.State)
	assert.True(t, v.Done())
}

func TestVehicle_AssignRejectsForeignPath(t *testing.T) {
	n := newNetwork(t)
	p, err := n.router.FindPathFrom(n.a, n.s2)
	require.NoError(t, err)
	p.Origin = n.s1

	v := New(1, 0)
	assert.ErrorIs(t, v.Assign(n.g, p), ErrStalePath)
	assert.ErrorIs(t, v.Assign(n.g, routing.Path{}), ErrStalePath)
	assert.Equal(t, StateSpawning, v.State)
}

func TestVehicle_GetLog(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 7)
	v.Progress = 20

	l := v.GetLog(n.g)
	assert.Equal(t, ID(7), l.ID)
	assert.Equal(t, graph.Coordinate{X: -30, Y: 0}, l.Position)
	assert.Zero(t, l.Heading)
	assert.Equal(t, n.s2, l.Destination)
}

func TestClassify(t *testing.T) {
	g := graph.NewGraph(graph.DefaultOptions())
	j := g.AddNode(graph.Coordinate{}, graph.KindIntersection)
	w := g.AddNode(graph.Coordinate{X: -10}, graph.KindIntersection)
	e := g.AddNode(graph.Coordinate{X: 10}, graph.KindIntersection)
	nn := g.AddNode(graph.Coordinate{Y: 10}, graph.KindIntersection)
	s := g.AddNode(graph.Coordinate{Y: -10}, graph.KindIntersection)
	ne := g.AddNode(graph.Coordinate{X: -10, Y: 1}, graph.KindIntersection)
	edge := func(a, b graph.NodeID) graph.Edge {
		id, err := g.AddEdge(a, b, 1)
		require.NoError(t, err)
		out, _ := g.Edge(id)
		return out
	}
	west, east, north, south, back := edge(w, j), edge(j, e), edge(j, nn), edge(j, s), edge(j, ne)

	assert.Equal(t, ManeuverStraight, Classify(g, west, graph.Forward, east, graph.Forward))
	assert.Equal(t, ManeuverLeft, Classify(g, west, graph.Forward, north, graph.Forward))
	assert.Equal(t, ManeuverRight, Classify(g, west, graph.Forward, south, graph.Forward))
	assert.Equal(t, ManeuverUTurn, Classify(g, west, graph.Forward, west, graph.Reverse))
	assert.Equal(t, ManeuverUTurn, Classify(g, west, graph.Forward, back, graph.Forward))
}

func TestVehicle_RerouteOnLastSegmentKeepsDestination(t *testing.T) {
	n := newNetwork(t)
	v := n.spawn(t, 1)
	v.enter(2, n.b)
	v.Progress = 10
	require.NoError(t, n.g.RemoveEdge(n.ac))

	require.NoError(t, v.Reroute(n.g, n.router, nil, params.MinGap, nil))
	assert.Equal(t, []graph.EdgeID{n.out}, v.Path.Edges())
	assert.Equal(t, []float64{50}, v.Path.Cumulative)
	assert.True(t, v.PathValid(n.g))
}
