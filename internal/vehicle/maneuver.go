package vehicle

import (
	"math"

	"github.com/cxd309/citysim-engine/internal/graph"
)

// Maneuver is the kind of turn a vehicle made at its last intersection.
type Maneuver string

const (
	ManeuverNone     Maneuver = ""
	ManeuverStraight Maneuver = "straight"
	ManeuverLeft     Maneuver = "left"
	ManeuverRight    Maneuver = "right"
	ManeuverUTurn    Maneuver = "uturn"
)

// straightBand is the largest heading change still counted as straight on,
// and the closest a turn may come to a full reversal before it counts as a
// U-turn.
const straightBand = math.Pi / 6

// Classify returns the maneuver for leaving segment from (driven in fromDir)
// onto segment to (driven in toDir). Angles are counter-clockwise with y up,
// so a positive heading change is a left turn.
func Classify(g *graph.Graph, from graph.Edge, fromDir graph.Direction, to graph.Edge, toDir graph.Direction) Maneuver {
	if from.ID == to.ID {
		return ManeuverUTurn
	}
	turn := normalizeAngle(g.Heading(to, toDir) - g.Heading(from, fromDir))
	switch {
	case math.Abs(turn) <= straightBand:
		return ManeuverStraight
	case math.Abs(turn) >= math.Pi-straightBand:
		return ManeuverUTurn
	case turn > 0:
		return ManeuverLeft
	default:
		return ManeuverRight
	}
}

// normalizeAngle maps a into (-π, π].
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
