package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// cross builds a junction j with west and north approaches.
func cross(t *testing.T) (*graph.Graph, graph.NodeID, graph.EdgeID, graph.EdgeID) {
	t.Helper()
	g := graph.NewGraph(graph.DefaultOptions())
	j := g.AddNode(graph.Coordinate{X: 0, Y: 0}, graph.KindIntersection)
	w := g.AddNode(graph.Coordinate{X: -50, Y: 0}, graph.KindIntersection)
	n := g.AddNode(graph.Coordinate{X: 0, Y: 50}, graph.KindIntersection)
	west, err := g.AddEdge(w, j, 1)
	require.NoError(t, err)
	north, err := g.AddEdge(n, j, 1)
	require.NoError(t, err)
	return g, j, west, north
}

func TestController_RotationHoldsForPhase(t *testing.T) {
	g, j, west, north := cross(t)
	c := NewController(3)
	c.Sync(g)

	assert.True(t, c.MayProceed(j, west))
	assert.False(t, c.MayProceed(j, north))

	c.Tick()
	c.Tick()
	assert.True(t, c.MayProceed(j, west))

	c.Tick()
	assert.False(t, c.MayProceed(j, west))
	assert.True(t, c.MayProceed(j, north))

	for range 3 {
		c.Tick()
	}
	assert.True(t, c.MayProceed(j, west), "rotation wraps")
}

func TestController_SingleApproachAlwaysGreen(t *testing.T) {
	g := graph.NewGraph(graph.DefaultOptions())
	a := g.AddNode(graph.Coordinate{}, graph.KindIntersection)
	b := g.AddNode(graph.Coordinate{X: 10}, graph.KindIntersection)
	e, _ := g.AddEdge(a, b, 1)

	c := NewController(2)
	c.Sync(g)
	for range 5 {
		assert.True(t, c.MayProceed(b, e))
		c.Tick()
	}
}

func TestController_UnknownNodeDenied(t *testing.T) {
	c := NewController(2)
	assert.False(t, c.MayProceed(42, 1))
}

func TestController_SyncKeepsSurvivingActiveApproach(t *testing.T) {
	g, j, west, north := cross(t)
	c := NewController(5)
	c.Sync(g)
	for range 5 {
		c.Tick()
	}
	require.True(t, c.MayProceed(j, north))
	c.Tick()

	s := g.AddNode(graph.Coordinate{X: 0, Y: -50}, graph.KindIntersection)
	south, err := g.AddEdge(s, j, 1)
	require.NoError(t, err)
	c.Sync(g)

	st, ok := c.State(j)
	require.True(t, ok)
	assert.Equal(t, []graph.EdgeID{west, north, south}, st.Rotation)
	assert.Equal(t, north, st.ActiveApproach())
	assert.Equal(t, 4, st.Remaining)
}

func TestController_SyncResetsWhenActiveRemoved(t *testing.T) {
	g, j, west, north := cross(t)
	c := NewController(5)
	c.Sync(g)
	c.Tick()

	e := g.AddNode(graph.Coordinate{X: 50}, graph.KindIntersection)
	east, _ := g.AddEdge(e, j, 1)
	require.NoError(t, g.RemoveEdge(west))
	c.Sync(g)

	st, _ := c.State(j)
	assert.Equal(t, []graph.EdgeID{north, east}, st.Rotation)
	assert.Equal(t, north, st.ActiveApproach())
	assert.Equal(t, 5, st.Remaining)
}

func TestController_SyncDropsRemovedIntersections(t *testing.T) {
	g, j, _, _ := cross(t)
	c := NewController(5)
	c.Sync(g)
	require.Equal(t, 3, c.Len())

	require.NoError(t, g.RemoveNode(j))
	c.Sync(g)
	assert.Equal(t, 0, c.Len(), "the outer nodes lost their only road")
	_, ok := c.State(j)
	assert.False(t, ok)
}

func TestController_StatesSorted(t *testing.T) {
	g, _, _, _ := cross(t)
	c := NewController(5)
	c.Sync(g)

	var nodes []graph.NodeID
	for _, s := range c.States() {
		nodes = append(nodes, s.Node)
	}
	assert.Equal(t, []graph.NodeID{1, 2, 3}, nodes)
}
