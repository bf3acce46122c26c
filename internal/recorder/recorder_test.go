package recorder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/citysim-engine/internal/engine"
	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/vehicle"
)

func openTemp(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "run.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecord_WithoutBegin(t *testing.T) {
	r := openTemp(t)
	assert.ErrorIs(t, r.Record(engine.Snapshot{Tick: 1}), ErrNoRun)
}

func TestRecord_StoresVehiclesAndSignals(t *testing.T) {
	r := openTemp(t)
	run, err := r.Begin("unit")
	require.NoError(t, err)

	snap := engine.Snapshot{
		Tick: 3,
		Vehicles: []vehicle.Log{
			{ID: 2, State: vehicle.StateCruising, Edge: 4, Dir: graph.Reverse, Progress: 1.5, Speed: 9, Position: graph.Coordinate{X: 10, Y: 20}, Heading: 1},
			{ID: 1, State: vehicle.StateAtIntersection, Edge: 7, Maneuver: vehicle.ManeuverLeft},
		},
		Signals: []engine.SignalView{{Node: 5, Active: 4, Remaining: 12}},
	}
	require.NoError(t, r.Record(snap))
	require.NoError(t, r.Record(engine.Snapshot{Tick: 4}))

	frames, err := r.Frames(run.ID, 3)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].VehicleID)
	assert.Equal(t, string(vehicle.ManeuverLeft), frames[0].Maneuver)
	assert.Equal(t, 2, frames[1].VehicleID)
	assert.Equal(t, int8(graph.Reverse), frames[1].Dir)
	assert.InDelta(t, 20.0, frames[1].Y, 1e-12)

	signals, err := r.Signals(run.ID, 3)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, SignalFrame{ID: signals[0].ID, RunID: run.ID, Tick: 3, NodeID: 5, ActiveEdge: 4, Remaining: 12}, signals[0])

	runs, err := r.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(4), runs[0].Ticks)
	assert.Equal(t, "unit", runs[0].SimulationID)
}

func TestRecord_AsScenarioSink(t *testing.T) {
	r := openTemp(t)
	run, err := r.Begin("sink")
	require.NoError(t, err)

	interval := 0
	input := engine.SimulationInput{
		Meta: engine.SimulationMeta{SimulationID: "sink", Ticks: 3, TimeStep: 1, SpawnInterval: &interval},
		Roads: engine.RoadData{
			Nodes:     []engine.NodeData{{Key: "a"}, {Key: "b", X: 80}},
			Edges:     []engine.EdgeData{{A: "a", B: "b"}},
			Buildings: []engine.BuildingData{{Key: "h", X: -10}, {Key: "w", X: 90}},
		},
		Trips: []engine.TripData{{Tick: 1, From: "h", To: "w"}},
	}
	sc, err := engine.NewScenario(input, engine.DefaultOptions(), graph.DefaultOptions(), zerolog.Nop(), nil)
	require.NoError(t, err)
	_, err = sc.Run(context.Background(), r)
	require.NoError(t, err)

	frames, err := r.Frames(run.ID, 1)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	signals, err := r.Signals(run.ID, 3)
	require.NoError(t, err)
	assert.Len(t, signals, 2)
}
