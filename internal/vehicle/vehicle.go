// Package vehicle defines the autonomous vehicle agent: a per-tick state
// machine that follows a routed path, queues behind the vehicle ahead,
// negotiates signalled intersections and recovers from road edits.
package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/kinematics"
	"github.com/cxd309/citysim-engine/internal/routing"
)

// ID is a unique vehicle identifier.
type ID int

// State is the lifecycle state of a vehicle.
type State string

const (
	StateSpawning       State = "spawning"
	StateCruising       State = "cruising"
	StateAtIntersection State = "at_intersection"
	StateUturning       State = "uturning"
	StateArriving       State = "arriving"
	StateDespawned      State = "despawned"
)

// ErrStalePath means the vehicle's remaining path no longer exists in the
// graph and it has to be re-routed.
var ErrStalePath = errors.New("stale path")

// endEpsilon absorbs float error when comparing progress to segment length.
const endEpsilon = 1e-9

// Signals is the part of the intersection controller a vehicle consults.
type Signals interface {
	MayProceed(node graph.NodeID, approach graph.EdgeID) bool
}

// PathFinder computes replacement paths.
type PathFinder interface {
	FindPathFrom(origin, dest graph.NodeID) (routing.Path, error)
}

// Params are the driving parameters shared by all vehicles.
type Params struct {
	MinGap   float64 // metres kept to the vehicle ahead
	MinSpeed float64 // m/s floor for the desired speed
	Motion   kinematics.MotionModel
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{MinGap: 6, MinSpeed: 2, Motion: kinematics.Default()}
}

// Vehicle is a single agent. Progress is measured in metres from the
// endpoint it entered the current segment by.
type Vehicle struct {
	ID          ID
	State       State
	Path        routing.Path
	Cursor      int // index of the current step in Path.Steps
	Edge        graph.EdgeID
	Dir         graph.Direction
	Progress    float64
	Speed       float64
	SpeedOffset float64 // fixed for the vehicle's lifetime
	Maneuver    Maneuver

	entry graph.NodeID // node the current segment was entered from
}

// New returns a vehicle waiting for its first path.
func New(id ID, speedOffset float64) *Vehicle {
	return &Vehicle{ID: id, State: StateSpawning, SpeedOffset: speedOffset}
}

// OnRoad reports whether the vehicle occupies a segment.
func (v *Vehicle) OnRoad() bool {
	return v.State != StateSpawning && v.State != StateDespawned
}

// Done reports whether the vehicle should be removed from the simulation.
func (v *Vehicle) Done() bool {
	return v.State == StateArriving || v.State == StateDespawned
}

// Assign places a spawning vehicle at the start of path, which must begin at
// its origin stub.
func (v *Vehicle) Assign(g *graph.Graph, path routing.Path) error {
	if v.State != StateSpawning {
		return fmt.Errorf("vehicle %d: assign in state %s", v.ID, v.State)
	}
	if len(path.Steps) == 0 {
		return fmt.Errorf("vehicle %d: empty path: %w", v.ID, ErrStalePath)
	}
	first, ok := g.Edge(path.Steps[0].Edge)
	if !ok || first.Start(path.Steps[0].Dir) != path.Origin {
		return fmt.Errorf("vehicle %d: path does not start at %d: %w", v.ID, path.Origin, ErrStalePath)
	}
	v.Path = path
	v.enter(0, path.Origin)
	v.Speed = 0
	v.State = StateCruising
	return nil
}

func (v *Vehicle) enter(cursor int, from graph.NodeID) {
	s := v.Path.Steps[cursor]
	v.Cursor = cursor
	v.Edge = s.Edge
	v.Dir = s.Dir
	v.Progress = 0
	v.entry = from
}

// Despawn removes the vehicle from the road.
func (v *Vehicle) Despawn() {
	v.State = StateDespawned
	v.Speed = 0
}

// RemainingEdges returns the segments from the current one to the destination.
func (v *Vehicle) RemainingEdges() []graph.EdgeID {
	if v.Cursor >= len(v.Path.Steps) {
		return nil
	}
	ids := make([]graph.EdgeID, 0, len(v.Path.Steps)-v.Cursor)
	for _, s := range v.Path.Steps[v.Cursor:] {
		ids = append(ids, s.Edge)
	}
	return ids
}

// References reports whether any remaining segment is in edges.
func (v *Vehicle) References(edges map[graph.EdgeID]struct{}) bool {
	for _, id := range v.RemainingEdges() {
		if _, ok := edges[id]; ok {
			return true
		}
	}
	return false
}

// PathValid reports whether the remaining path is still drivable in g: every
// segment exists, consecutive steps connect, and the final step ends at a live
// building stub that is the destination.
func (v *Vehicle) PathValid(g *graph.Graph) bool {
	steps := v.Path.Steps
	if v.Cursor >= len(steps) || steps[v.Cursor].Edge != v.Edge || steps[v.Cursor].Dir != v.Dir {
		return false
	}
	at := graph.NodeID(0)
	for i, s := range steps[v.Cursor:] {
		e, ok := g.Edge(s.Edge)
		if !ok {
			return false
		}
		if i > 0 && e.Start(s.Dir) != at {
			return false
		}
		at = e.End(s.Dir)
	}
	d, ok := g.Node(v.Path.Destination)
	return ok && at == d.ID && d.Kind == graph.KindBuildingStub
}

// Step advances the vehicle by one tick of dt seconds. It returns
// ErrStalePath when the path must be replaced before the vehicle can move.
func (v *Vehicle) Step(g *graph.Graph, signals Signals, idx *Index, p Params, dt float64) error {
	switch v.State {
	case StateSpawning, StateArriving, StateDespawned:
		return nil
	case StateUturning:
		v.State = StateCruising
	}
	if !v.PathValid(g) {
		return fmt.Errorf("vehicle %d on edge %d: %w", v.ID, v.Edge, ErrStalePath)
	}
	e, _ := g.Edge(v.Edge)
	if v.State == StateAtIntersection {
		v.cross(g, e, signals, idx, p)
		return nil
	}
	return v.drive(g, e, signals, idx, p, dt)
}

func (v *Vehicle) drive(g *graph.Graph, e graph.Edge, signals Signals, idx *Index, p Params, dt float64) error {
	desired := math.Max(e.SpeedLimit+v.SpeedOffset, p.MinSpeed)
	motion := p.Motion
	if motion == nil {
		motion = kinematics.Default()
	}
	dist, speed := motion.Step(v.Speed, desired, dt)

	if leader, ok := idx.Leader(v); ok {
		bound := math.Max(0, leader.Progress-p.MinGap-v.Progress)
		if dist > bound {
			dist = bound
			speed = math.Min(speed, bound/dt)
		}
	}
	remaining := e.Length - v.Progress
	if dist < remaining-endEpsilon {
		v.Progress += dist
		v.Speed = speed
		return nil
	}

	v.Progress = e.Length
	v.Speed = speed
	far := e.End(v.Dir)
	if v.Cursor == len(v.Path.Steps)-1 {
		if far != v.Path.Destination {
			return fmt.Errorf("vehicle %d: path ends at %d, not %d: %w", v.ID, far, v.Path.Destination, ErrStalePath)
		}
		v.State = StateArriving
		v.Speed = 0
		return nil
	}
	if n, _ := g.Node(far); n.Kind != graph.KindIntersection {
		return fmt.Errorf("vehicle %d: path passes through stub %d: %w", v.ID, far, ErrStalePath)
	}
	v.State = StateAtIntersection
	v.cross(g, e, signals, idx, p)
	return nil
}

// cross tries to leave the intersection at the end of e onto the next step.
// A vehicle that may not go waits at the stop line.
func (v *Vehicle) cross(g *graph.Graph, e graph.Edge, signals Signals, idx *Index, p Params) {
	node := e.End(v.Dir)
	next := v.Path.Steps[v.Cursor+1]
	if !signals.MayProceed(node, v.Edge) || !idx.EntryClear(next.Edge, next.Dir, p.MinGap) {
		v.Speed = 0
		return
	}
	ne, _ := g.Edge(next.Edge)
	v.Maneuver = Classify(g, e, v.Dir, ne, next.Dir)
	v.enter(v.Cursor+1, node)
	if v.Maneuver == ManeuverUTurn {
		v.State = StateUturning
	} else {
		v.State = StateCruising
	}
	idx.Enter(v)
}

// Log is a point-in-time view of a vehicle.
type Log struct {
	ID          ID               `json:"id"`
	State       State            `json:"state"`
	Edge        graph.EdgeID     `json:"edge"`
	Dir         graph.Direction  `json:"dir"`
	Progress    float64          `json:"progress"`
	Speed       float64          `json:"speed"`
	Maneuver    Maneuver         `json:"maneuver,omitempty"`
	Position    graph.Coordinate `json:"position"`
	Heading     float64          `json:"heading"` // radians
	Origin      graph.NodeID     `json:"origin"`
	Destination graph.NodeID     `json:"destination"`
}

// GetLog returns a point-in-time view of the vehicle, resolved to world
// coordinates against g.
func (v *Vehicle) GetLog(g *graph.Graph) Log {
	l := Log{
		ID:          v.ID,
		State:       v.State,
		Edge:        v.Edge,
		Dir:         v.Dir,
		Progress:    v.Progress,
		Speed:       v.Speed,
		Maneuver:    v.Maneuver,
		Origin:      v.Path.Origin,
		Destination: v.Path.Destination,
	}
	if e, ok := g.Edge(v.Edge); ok {
		l.Position = g.PointAt(e, v.Dir, v.Progress)
		l.Heading = g.Heading(e, v.Dir)
	}
	return l
}
