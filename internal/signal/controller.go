// Package signal implements timed-rotation traffic signals at intersections.
//
// Every intersection cycles through its approaches (the road segments that
// touch it) in adjacency order. Exactly one approach is green at a time and
// holds it for a fixed number of ticks.
package signal

import (
	"slices"

	"github.com/samber/lo"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// DefaultPhaseTicks is the number of ticks an approach stays green.
const DefaultPhaseTicks = 30

// State is the signal state of one intersection.
type State struct {
	Node      graph.NodeID   `json:"node"`
	Rotation  []graph.EdgeID `json:"rotation"`
	Active    int            `json:"active"`    // index into Rotation
	Remaining int            `json:"remaining"` // ticks left in the current phase
}

// ActiveApproach returns the edge currently allowed to enter the intersection.
func (s *State) ActiveApproach() graph.EdgeID {
	return s.Rotation[s.Active]
}

func (s *State) advance(phase int) {
	s.Active = (s.Active + 1) % len(s.Rotation)
	s.Remaining = phase
}

// Controller owns the signal state of every intersection in a graph.
type Controller struct {
	phase  int
	states map[graph.NodeID]*State
}

// NewController returns an empty controller. Phases shorter than one tick
// are raised to one.
func NewController(phaseTicks int) *Controller {
	return &Controller{
		phase:  max(1, phaseTicks),
		states: make(map[graph.NodeID]*State),
	}
}

// PhaseTicks returns the configured phase duration.
func (c *Controller) PhaseTicks() int { return c.phase }

// Sync reconciles controller state with the current graph.
func (c *Controller) Sync(g *graph.Graph) {
	live := make(map[graph.NodeID]bool)
	for _, n := range g.Intersections() {
		rotation := g.Incident(n)
		if len(rotation) == 0 {
			continue
		}
		live[n] = true

		s, ok := c.states[n]
		if !ok {
			c.states[n] = &State{Node: n, Rotation: rotation, Remaining: c.phase}
			continue
		}
		if slices.Equal(s.Rotation, rotation) {
			continue
		}
		active := s.ActiveApproach()
		s.Rotation = rotation
		if i := slices.Index(rotation, active); i >= 0 {
			s.Active = i
			continue
		}
		s.Active = 0
		s.Remaining = c.phase
	}
	for n := range c.states {
		if !live[n] {
			delete(c.states, n)
		}
	}
}

// Tick advances every phase timer by one tick.
func (c *Controller) Tick() {
	for _, s := range c.states {
		s.Remaining--
		if s.Remaining <= 0 {
			s.advance(c.phase)
		}
	}
}

// MayProceed reports whether a vehicle arriving on approach may enter node.
// Unknown nodes never grant permission.
func (c *Controller) MayProceed(node graph.NodeID, approach graph.EdgeID) bool {
	s, ok := c.states[node]
	if !ok {
		return false
	}
	if len(s.Rotation) == 1 {
		return s.Rotation[0] == approach
	}
	return s.ActiveApproach() == approach
}

// State returns a copy of the signal state at node.
func (c *Controller) State(node graph.NodeID) (State, bool) {
	s, ok := c.states[node]
	if !ok {
		return State{}, false
	}
	cp := *s
	cp.Rotation = slices.Clone(s.Rotation)
	return cp, true
}

// States returns copies of all signal states ordered by node id.
func (c *Controller) States() []State {
	nodes := lo.Keys(c.states)
	slices.Sort(nodes)
	return lo.Map(nodes, func(n graph.NodeID, _ int) State {
		s, _ := c.State(n)
		return s
	})
}

// Len returns the number of signalled intersections.
func (c *Controller) Len() int { return len(c.states) }
