// Package engine implements the city traffic simulation loop.
//
// Every tick runs in a fixed order:
//
//  1. Queued road edits are applied, each as one atomic batch.
//  2. If the road graph version moved, signals are re-synced and vehicles
//     whose remaining path touches the edited area are re-routed or despawned.
//  3. The per-lane vehicle index is rebuilt and every vehicle advances.
//  4. Signal timers advance, finished vehicles are removed, and new vehicles
//     are spawned on the spawn interval.
//
// Scenario runs the same loop from a JSON description, the way the CLI and
// the browser build drive it.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/kinematics"
	"github.com/cxd309/citysim-engine/internal/telemetry"
)

// Sink receives every snapshot of a run.
type Sink interface {
	Record(s Snapshot) error
}

// Scenario is a coordinator built from a SimulationInput together with the
// scheduled edits and trips still to run.
type Scenario struct {
	meta   SimulationMeta
	coord  *Coordinator
	logger zerolog.Logger
	nodes  map[string]graph.NodeID
	edges  map[string]graph.EdgeID
	edits  map[int][]EditData
	trips  map[int][]TripData
}

// NewScenario builds the road network described by input and a coordinator
// over it. Meta fields override the matching fields of opts.
func NewScenario(input SimulationInput, opts Options, gopts graph.Options, logger zerolog.Logger, metrics *telemetry.Metrics) (*Scenario, error) {
	meta := input.Meta
	if meta.TimeStep < 0 {
		return nil, fmt.Errorf("simulation %q: time step %g: %w", meta.SimulationID, meta.TimeStep, ErrInvalidTimeStep)
	}
	if meta.TimeStep > 0 {
		opts.TimeStep = meta.TimeStep
	}
	if opts.TimeStep <= 0 {
		return nil, fmt.Errorf("simulation %q: %w", meta.SimulationID, ErrInvalidTimeStep)
	}
	if meta.PhaseTicks > 0 {
		opts.PhaseTicks = meta.PhaseTicks
	}
	if meta.SpawnInterval != nil {
		opts.SpawnInterval = *meta.SpawnInterval
	}
	if len(meta.Kinematics) > 0 {
		m, err := kinematics.Decode(meta.Kinematics)
		if err != nil {
			return nil, fmt.Errorf("simulation %q: %w", meta.SimulationID, err)
		}
		opts.Vehicle.Motion = m
	}
	if meta.Seed == 0 {
		meta.Seed = opts.Seed
	}
	meta.TimeStep = opts.TimeStep
	meta.PhaseTicks = opts.PhaseTicks

	s := &Scenario{
		meta:   meta,
		logger: logger,
		nodes:  make(map[string]graph.NodeID),
		edges:  make(map[string]graph.EdgeID),
		edits:  make(map[int][]EditData),
		trips:  make(map[int][]TripData),
	}

	g := graph.NewGraph(gopts)
	err := g.Batch(func(g *graph.Graph) error {
		for _, n := range input.Roads.Nodes {
			if err := s.apply(g, EditData{Op: OpAddNode, Key: n.Key, X: n.X, Y: n.Y, Kind: n.Kind}); err != nil {
				return err
			}
		}
		for _, e := range input.Roads.Edges {
			if err := s.apply(g, EditData{Op: OpAddEdge, Key: e.Key, A: e.A, B: e.B, Lanes: e.Lanes}); err != nil {
				return err
			}
		}
		for _, b := range input.Roads.Buildings {
			if err := s.apply(g, EditData{Op: OpAttachBuilding, Key: b.Key, X: b.X, Y: b.Y}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building road network: %w", err)
	}

	for _, e := range input.Edits {
		s.edits[e.Tick] = append(s.edits[e.Tick], e)
	}
	for _, t := range input.Trips {
		s.trips[t.Tick] = append(s.trips[t.Tick], t)
	}
	s.coord = New(g, opts, NewRand(meta.Seed), logger, metrics)
	return s, nil
}

// Coordinator returns the scenario's coordinator.
func (s *Scenario) Coordinator() *Coordinator { return s.coord }

// Node resolves a scenario node or building key.
func (s *Scenario) Node(key string) (graph.NodeID, bool) {
	id, ok := s.nodes[key]
	return id, ok
}

// Edge resolves a scenario segment key.
func (s *Scenario) Edge(key string) (graph.EdgeID, bool) {
	id, ok := s.edges[key]
	return id, ok
}

func (s *Scenario) node(key string) (graph.NodeID, error) {
	id, ok := s.nodes[key]
	if !ok {
		return 0, fmt.Errorf("node %q: %w", key, graph.ErrUnknownNode)
	}
	return id, nil
}

func (s *Scenario) edge(key string) (graph.EdgeID, error) {
	id, ok := s.edges[key]
	if !ok {
		return 0, fmt.Errorf("edge %q: %w", key, graph.ErrUnknownEdge)
	}
	return id, nil
}

// apply performs one scenario edit on g and records any keys it creates.
func (s *Scenario) apply(g *graph.Graph, e EditData) error {
	switch e.Op {
	case OpAddNode:
		id := g.AddNode(graph.Coordinate{X: e.X, Y: e.Y}, e.Kind)
		if !g.HasNode(id) {
			return fmt.Errorf("node %q: %w", e.Key, graph.ErrNoRoad)
		}
		s.nodes[e.Key] = id
	case OpAddEdge:
		a, err := s.node(e.A)
		if err != nil {
			return err
		}
		b, err := s.node(e.B)
		if err != nil {
			return err
		}
		id, err := g.AddEdge(a, b, max(1, e.Lanes))
		if err != nil {
			return err
		}
		if e.Key != "" {
			s.edges[e.Key] = id
		}
	case OpRemoveEdge:
		id, err := s.edge(e.Edge)
		if err != nil {
			return err
		}
		return g.RemoveEdge(id)
	case OpRemoveNode:
		id, err := s.node(e.Node)
		if err != nil {
			return err
		}
		return g.RemoveNode(id)
	case OpExtendEdge:
		id, err := s.edge(e.Edge)
		if err != nil {
			return err
		}
		to, err := s.node(e.Node)
		if err != nil {
			return err
		}
		out, err := g.ExtendEdge(id, to)
		if err != nil {
			return err
		}
		s.edges[e.Edge] = out
	case OpAttachBuilding:
		id, err := g.AttachBuilding(graph.Coordinate{X: e.X, Y: e.Y})
		if err != nil {
			return err
		}
		s.nodes[e.Key] = id
	default:
		return fmt.Errorf("unknown edit op %q", e.Op)
	}
	return nil
}

// Run executes every tick of the scenario. Each snapshot is passed to sink
// when one is given.
func (s *Scenario) Run(ctx context.Context, sink Sink) (SimulationLog, error) {
	log := SimulationLog{Meta: s.meta, Output: make([]Snapshot, 0, s.meta.Ticks)}
	for tick := 1; tick <= s.meta.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return log, fmt.Errorf("at tick %d: %w", tick, err)
		}
		for _, e := range s.edits[tick] {
			s.coord.Submit(func(g *graph.Graph) error { return s.apply(g, e) })
		}
		for _, t := range s.trips[tick] {
			s.trip(ctx, t)
		}
		snap := s.coord.Tick(ctx)
		if sink != nil {
			if err := sink.Record(snap); err != nil {
				return log, fmt.Errorf("recording tick %d: %w", tick, err)
			}
		}
		log.Output = append(log.Output, snap)
	}
	log.Stats = s.coord.Stats()
	s.logger.Info().
		Str("simulation", s.meta.SimulationID).
		Int("ticks", s.meta.Ticks).
		Int("spawned", log.Stats.Spawned).
		Int("arrived", log.Stats.Arrived).
		Int("despawned", log.Stats.Despawned).
		Msg("simulation finished")
	return log, nil
}

func (s *Scenario) trip(ctx context.Context, t TripData) {
	from, err := s.node(t.From)
	if err == nil {
		var to graph.NodeID
		if to, err = s.node(t.To); err == nil {
			_, err = s.coord.Spawn(ctx, from, to)
		}
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("tick", t.Tick).Str("from", t.From).Str("to", t.To).Msg("trip skipped")
	}
}

// RunJSON is the entry point shared by the CLI and WASM builds. It accepts a
// JSON-encoded SimulationInput, runs it with default options and returns the
// JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	return RunJSONWith(context.Background(), jsonInput, DefaultOptions(), graph.DefaultOptions(), zerolog.Nop(), nil, nil)
}

// RunJSONWith is RunJSON with explicit options, logger, metrics and sink.
func RunJSONWith(ctx context.Context, jsonInput string, opts Options, gopts graph.Options, logger zerolog.Logger, metrics *telemetry.Metrics, sink Sink) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}
	if input.Meta.Ticks < 0 {
		return "", errors.New("invalid input: negative tick count")
	}

	sc, err := NewScenario(input, opts, gopts, logger, metrics)
	if err != nil {
		return "", err
	}
	simLog, err := sc.Run(ctx, sink)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
