package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/cxd309/citysim-engine/internal/config"
	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/kinematics"
	"github.com/cxd309/citysim-engine/internal/routing"
	"github.com/cxd309/citysim-engine/internal/signal"
	"github.com/cxd309/citysim-engine/internal/vehicle"
)

// ErrInvalidTimeStep is returned for a tick length that is not positive.
var ErrInvalidTimeStep = errors.New("time step must be positive")

// Options are the coordinator's tuning parameters.
type Options struct {
	TimeStep            float64 // seconds per tick
	PhaseTicks          int     // ticks each signal approach stays green
	SpawnInterval       int     // ticks between random spawn attempts; 0 disables them
	BuildingsPerVehicle int     // random spawning stops at stubs/BuildingsPerVehicle vehicles
	MaxSpeedVariation   float64 // per-vehicle speed offset is drawn from ±MaxSpeedVariation
	Seed                uint64  // scenario seed when the input names none
	Vehicle             vehicle.Params
	Routing             routing.Options
}

// DefaultOptions returns 10 Hz ticks with a spawn attempt every half second.
func DefaultOptions() Options {
	return Options{
		TimeStep:            0.1,
		PhaseTicks:          signal.DefaultPhaseTicks,
		SpawnInterval:       5,
		BuildingsPerVehicle: 5,
		MaxSpeedVariation:   1.5,
		Seed:                1,
		Vehicle:             vehicle.DefaultParams(),
	}
}

// OptionsFromConfig maps loaded configuration onto coordinator and graph
// options. A positive sim.spawnPeriod, in seconds, takes precedence over
// sim.spawnInterval.
func OptionsFromConfig(c config.Config) (Options, graph.Options, error) {
	if c.Sim.TimeStep <= 0 {
		return Options{}, graph.Options{}, fmt.Errorf("sim.timeStep %g: %w", c.Sim.TimeStep, ErrInvalidTimeStep)
	}
	if c.Sim.SpawnPeriod < 0 {
		return Options{}, graph.Options{}, fmt.Errorf("sim.spawnPeriod %g must not be negative", c.Sim.SpawnPeriod)
	}
	opts := Options{
		TimeStep:            c.Sim.TimeStep,
		PhaseTicks:          c.Sim.PhaseTicks,
		SpawnInterval:       c.Sim.SpawnInterval,
		BuildingsPerVehicle: c.Sim.BuildingsPerVehicle,
		MaxSpeedVariation:   c.Sim.MaxSpeedVariation,
		Seed:                c.Sim.Seed,
		Vehicle: vehicle.Params{
			MinGap:   c.Sim.MinGap,
			MinSpeed: c.Sim.MinSpeed,
			Motion:   kinematics.ConstantAcceleration{AAcc: c.Sim.Acceleration},
		},
		Routing: routing.Options{LanePenalty: c.Road.LanePenalty},
	}
	if c.Sim.SpawnPeriod > 0 {
		opts.SpawnInterval = SpawnIntervalFor(c.Sim.SpawnPeriod, c.Sim.TimeStep)
	}
	g := graph.DefaultOptions()
	g.SpeedLimit = c.Road.SpeedLimit
	g.Spacing = c.Road.Spacing
	g.SnapRadius = c.Road.SnapRadius
	return opts, g, nil
}

// SpawnIntervalFor converts a spawn period in seconds to whole ticks.
func SpawnIntervalFor(seconds, timeStep float64) int {
	if seconds <= 0 || timeStep <= 0 {
		return 0
	}
	return max(1, int(math.Round(seconds/timeStep)))
}
