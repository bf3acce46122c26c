package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/routing"
	"github.com/cxd309/citysim-engine/internal/signal"
	"github.com/cxd309/citysim-engine/internal/telemetry"
	"github.com/cxd309/citysim-engine/internal/vehicle"
)

// Rand is the random source for spawn selection and speed offsets.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns the deterministic generator used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

// Edit is a road network change applied atomically between ticks.
type Edit func(g *graph.Graph) error

// Stats are running totals for a coordinator.
type Stats struct {
	Spawned       int `json:"spawned"`
	Arrived       int `json:"arrived"`
	Despawned     int `json:"despawned"` // removed without arriving
	Rerouted      int `json:"rerouted"`
	SkippedSpawns int `json:"skipped_spawns"`
	AppliedEdits  int `json:"applied_edits"`
	RejectedEdits int `json:"rejected_edits"`
}

// Coordinator owns the road graph, the signals and the vehicle fleet, and
// advances them one tick at a time.
type Coordinator struct {
	opts    Options
	graph   *graph.Graph
	router  *routing.Router
	signals *signal.Controller
	rng     Rand
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	pending []Edit

	tick     uint64
	version  uint64
	vehicles []*vehicle.Vehicle // ascending id
	nextID   vehicle.ID
	stats    Stats
}

// New returns a coordinator driving g. A nil rng is seeded with 1 and a nil
// metrics uses no-op instruments.
func New(g *graph.Graph, opts Options, rng Rand, logger zerolog.Logger, metrics *telemetry.Metrics) *Coordinator {
	if rng == nil {
		rng = NewRand(1)
	}
	if metrics == nil {
		metrics = telemetry.Nop()
	}
	if opts.TimeStep <= 0 {
		logger.Warn().Float64("timeStep", opts.TimeStep).Msg("time step must be positive, using default")
		opts.TimeStep = DefaultOptions().TimeStep
	}
	c := &Coordinator{
		opts:    opts,
		graph:   g,
		router:  routing.New(g, opts.Routing),
		signals: signal.NewController(opts.PhaseTicks),
		rng:     rng,
		logger:  logger,
		metrics: metrics,
		version: g.Version(),
		nextID:  1,
	}
	c.signals.Sync(g)
	return c
}

// Graph returns the road graph. Direct edits must not overlap a Tick; use
// Submit from other goroutines.
func (c *Coordinator) Graph() *graph.Graph { return c.graph }

// Router returns the coordinator's router.
func (c *Coordinator) Router() *routing.Router { return c.router }

// Signals returns the intersection controller.
func (c *Coordinator) Signals() *signal.Controller { return c.signals }

// Stats returns the running totals.
func (c *Coordinator) Stats() Stats { return c.stats }

// CurrentTick returns the number of completed ticks.
func (c *Coordinator) CurrentTick() uint64 { return c.tick }

// VehicleCount returns the number of vehicles on the road.
func (c *Coordinator) VehicleCount() int { return len(c.vehicles) }

// Vehicle returns the live vehicle with the given id.
func (c *Coordinator) Vehicle(id vehicle.ID) (*vehicle.Vehicle, bool) {
	for _, v := range c.vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// Submit queues an edit for the start of the next tick. Safe for concurrent
// use.
func (c *Coordinator) Submit(e Edit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, e)
}

// Tick advances the simulation by one time step and returns the resulting
// snapshot.
func (c *Coordinator) Tick(ctx context.Context) Snapshot {
	c.tick++
	c.applyEdits(ctx)
	if c.graph.Version() != c.version {
		c.invalidate(ctx)
	}

	idx := vehicle.BuildIndex(c.vehicles)
	for _, v := range c.vehicles {
		c.step(ctx, v, idx)
	}
	c.signals.Tick()
	c.sweep(ctx)

	if c.opts.SpawnInterval > 0 && c.tick%uint64(c.opts.SpawnInterval) == 0 {
		c.spawnRandom(ctx, idx)
	}
	c.metrics.Active(ctx, len(c.vehicles))
	return c.Snapshot()
}

func (c *Coordinator) applyEdits(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, e := range pending {
		err := c.graph.Batch(e)
		c.metrics.Edit(ctx, err == nil)
		if err != nil {
			c.stats.RejectedEdits++
			c.logger.Warn().Err(err).Uint64("tick", c.tick).Msg("road edit rejected")
			continue
		}
		c.stats.AppliedEdits++
	}
}

// invalidate re-syncs signals and re-routes the vehicles whose remaining path
// runs over a segment touched by the edits since the last observed version.
func (c *Coordinator) invalidate(ctx context.Context) {
	changes, complete := c.graph.ChangesSince(c.version)
	c.version = c.graph.Version()
	c.signals.Sync(c.graph)

	affected := make(map[graph.EdgeID]struct{})
	for _, ch := range changes {
		for _, id := range ch.RemovedEdges {
			affected[id] = struct{}{}
		}
		for _, id := range c.graph.EdgesTouchedBy(ch.Region) {
			affected[id] = struct{}{}
		}
	}

	idx := vehicle.BuildIndex(c.vehicles)
	edits := vehicle.NewEdits(c.graph, changes)
	var n int
	for _, v := range c.vehicles {
		if !v.OnRoad() || (complete && !v.References(affected)) {
			continue
		}
		n++
		c.reroute(ctx, v, idx, edits)
	}
	c.logger.Debug().
		Uint64("version", c.version).
		Int("changes", len(changes)).
		Bool("complete", complete).
		Int("affected", n).
		Msg("road network changed")
}

func (c *Coordinator) reroute(ctx context.Context, v *vehicle.Vehicle, idx *vehicle.Index, edits *vehicle.Edits) bool {
	if err := v.Reroute(c.graph, c.router, idx, c.opts.Vehicle.MinGap, edits); err != nil {
		c.logger.Debug().Err(err).Int("vehicle", int(v.ID)).Msg("vehicle despawned after road edit")
		return false
	}
	c.stats.Rerouted++
	c.metrics.Rerouted(ctx)
	return true
}

func (c *Coordinator) step(ctx context.Context, v *vehicle.Vehicle, idx *vehicle.Index) {
	err := v.Step(c.graph, c.signals, idx, c.opts.Vehicle, c.opts.TimeStep)
	if err == nil {
		return
	}
	if errors.Is(err, vehicle.ErrStalePath) && c.reroute(ctx, v, idx, nil) {
		err = v.Step(c.graph, c.signals, idx, c.opts.Vehicle, c.opts.TimeStep)
		if err == nil {
			return
		}
	}
	if v.OnRoad() {
		c.logger.Warn().Err(err).Int("vehicle", int(v.ID)).Msg("vehicle despawned")
		v.Despawn()
	}
}

// sweep drops arrived and despawned vehicles.
func (c *Coordinator) sweep(ctx context.Context) {
	kept := c.vehicles[:0]
	for _, v := range c.vehicles {
		switch v.State {
		case vehicle.StateArriving:
			v.Despawn()
			c.stats.Arrived++
			c.metrics.Despawned(ctx, "arrived")
		case vehicle.StateDespawned:
			c.stats.Despawned++
			c.metrics.Despawned(ctx, "no_route")
		default:
			kept = append(kept, v)
			continue
		}
		c.logger.Trace().Int("vehicle", int(v.ID)).Msg("vehicle removed")
	}
	clear(c.vehicles[len(kept):])
	c.vehicles = kept
}

// Capacity returns the most vehicles random spawning keeps on the road.
func (c *Coordinator) Capacity() int {
	if c.opts.BuildingsPerVehicle <= 0 {
		return 0
	}
	return len(c.graph.Stubs()) / c.opts.BuildingsPerVehicle
}

func (c *Coordinator) spawnRandom(ctx context.Context, idx *vehicle.Index) {
	if len(c.vehicles) >= c.Capacity() {
		return
	}
	stubs := c.graph.Stubs()
	if len(stubs) < 2 {
		return
	}
	i := c.rng.IntN(len(stubs))
	j := c.rng.IntN(len(stubs) - 1)
	if j >= i {
		j++
	}
	if _, err := c.spawn(ctx, stubs[i], stubs[j], idx); err != nil {
		c.logger.Trace().Err(err).Msg("spawn skipped")
	}
}

// Spawn places a vehicle at origin bound for dest. It fails with
// routing.ErrNotReachable when no path exists and vehicle.ErrEntryBlocked
// when the origin's road is occupied at its entry.
func (c *Coordinator) Spawn(ctx context.Context, origin, dest graph.NodeID) (vehicle.ID, error) {
	if c.graph.Version() != c.version {
		c.invalidate(ctx)
	}
	return c.spawn(ctx, origin, dest, vehicle.BuildIndex(c.vehicles))
}

func (c *Coordinator) spawn(ctx context.Context, origin, dest graph.NodeID, idx *vehicle.Index) (vehicle.ID, error) {
	p, err := c.router.FindPath(origin, dest)
	if err != nil {
		c.skip(ctx, "not_reachable")
		return 0, fmt.Errorf("spawn %d -> %d: %w", origin, dest, err)
	}
	first := p.Steps[0]
	if !idx.EntryClear(first.Edge, first.Dir, c.opts.Vehicle.MinGap) {
		c.skip(ctx, "blocked")
		return 0, fmt.Errorf("spawn %d -> %d: %w", origin, dest, vehicle.ErrEntryBlocked)
	}

	offset := (2*c.rng.Float64() - 1) * c.opts.MaxSpeedVariation
	v := vehicle.New(c.nextID, offset)
	if err := v.Assign(c.graph, p); err != nil {
		return 0, err
	}
	c.nextID++
	idx.Enter(v)
	c.vehicles = append(c.vehicles, v)
	c.stats.Spawned++
	c.metrics.Spawned(ctx)
	c.logger.Debug().
		Int("vehicle", int(v.ID)).
		Int("origin", int(origin)).
		Int("destination", int(dest)).
		Float64("length", p.Length()).
		Msg("vehicle spawned")
	return v.ID, nil
}

func (c *Coordinator) skip(ctx context.Context, why string) {
	c.stats.SkippedSpawns++
	c.metrics.SpawnSkipped(ctx, why)
}
