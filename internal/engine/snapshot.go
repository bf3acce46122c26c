package engine

import (
	"github.com/cxd309/citysim-engine/internal/graph"
	"github.com/cxd309/citysim-engine/internal/vehicle"
)

// SignalView is the render-facing state of one intersection.
type SignalView struct {
	Node      graph.NodeID     `json:"node"`
	Position  graph.Coordinate `json:"position"`
	Active    graph.EdgeID     `json:"active"`
	Remaining int              `json:"remaining"`
}

// Snapshot is the read-only state handed to the renderer after each tick.
type Snapshot struct {
	Tick     uint64        `json:"tick"`
	Time     float64       `json:"time"` // seconds
	Version  uint64        `json:"version"`
	Vehicles []vehicle.Log `json:"vehicles"`
	Signals  []SignalView  `json:"signals"`
}

// Snapshot returns the current state without advancing it.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Tick:     c.tick,
		Time:     float64(c.tick) * c.opts.TimeStep,
		Version:  c.graph.Version(),
		Vehicles: make([]vehicle.Log, 0, len(c.vehicles)),
	}
	for _, v := range c.vehicles {
		s.Vehicles = append(s.Vehicles, v.GetLog(c.graph))
	}
	states := c.signals.States()
	s.Signals = make([]SignalView, 0, len(states))
	for _, st := range states {
		n, _ := c.graph.Node(st.Node)
		s.Signals = append(s.Signals, SignalView{
			Node:      st.Node,
			Position:  n.Loc,
			Active:    st.ActiveApproach(),
			Remaining: st.Remaining,
		})
	}
	return s
}
