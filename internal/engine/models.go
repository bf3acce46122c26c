package engine

import (
	"encoding/json"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// Edit operations understood by scenarios.
const (
	OpAddNode        = "add_node"
	OpAddEdge        = "add_edge"
	OpRemoveEdge     = "remove_edge"
	OpRemoveNode     = "remove_node"
	OpExtendEdge     = "extend_edge"
	OpAttachBuilding = "attach_building"
)

// SimulationMeta holds the identity and timing parameters for a run. Zero
// values fall back to the engine defaults.
type SimulationMeta struct {
	SimulationID  string          `json:"simulation_id"`
	Seed          uint64          `json:"seed"`
	Ticks         int             `json:"ticks"`
	TimeStep      float64         `json:"time_step,omitempty"`   // seconds
	PhaseTicks    int             `json:"phase_ticks,omitempty"` // signal phase length
	SpawnInterval *int            `json:"spawn_interval,omitempty"`
	Kinematics    json.RawMessage `json:"kinematics,omitempty"`
}

// NodeData is a named road node.
type NodeData struct {
	Key  string         `json:"key"`
	X    float64        `json:"x"`
	Y    float64        `json:"y"`
	Kind graph.NodeKind `json:"kind,omitempty"`
}

// EdgeData is a road segment between two named nodes. Key is optional and
// lets later edits refer to the segment.
type EdgeData struct {
	Key   string `json:"key,omitempty"`
	A     string `json:"a"`
	B     string `json:"b"`
	Lanes int    `json:"lanes,omitempty"`
}

// BuildingData is a building attached to the nearest road.
type BuildingData struct {
	Key string  `json:"key"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// RoadData is the initial road network.
type RoadData struct {
	Nodes     []NodeData     `json:"nodes"`
	Edges     []EdgeData     `json:"edges"`
	Buildings []BuildingData `json:"buildings"`
}

// EditData is a road edit applied at the start of a tick. Which fields are
// read depends on Op.
type EditData struct {
	Tick  int            `json:"tick"`
	Op    string         `json:"op"`
	Key   string         `json:"key,omitempty"`  // node or segment created by the edit
	Node  string         `json:"node,omitempty"` // remove_node target, extend_edge new endpoint
	Edge  string         `json:"edge,omitempty"` // remove_edge and extend_edge target
	A     string         `json:"a,omitempty"`
	B     string         `json:"b,omitempty"`
	Lanes int            `json:"lanes,omitempty"`
	X     float64        `json:"x,omitempty"`
	Y     float64        `json:"y,omitempty"`
	Kind  graph.NodeKind `json:"kind,omitempty"`
}

// TripData requests a vehicle between two named buildings before a tick.
type TripData struct {
	Tick int    `json:"tick"`
	From string `json:"from"`
	To   string `json:"to"`
}

// SimulationInput is the JSON-serialisable input to the engine.
type SimulationInput struct {
	Meta  SimulationMeta `json:"simulation_meta"`
	Roads RoadData       `json:"roads"`
	Edits []EditData     `json:"edits,omitempty"`
	Trips []TripData     `json:"trips,omitempty"`
}

// SimulationLog is the complete output of a run.
type SimulationLog struct {
	Meta   SimulationMeta `json:"simulation_meta"`
	Output []Snapshot     `json:"output"`
	Stats  Stats          `json:"stats"`
}
