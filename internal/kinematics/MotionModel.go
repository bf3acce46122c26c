// Package kinematics defines how a vehicle's speed changes towards the speed
// it wants to drive at, along with built-in implementations.
//
// Adding a model only requires implementing MotionModel and registering it
// in Decode; the vehicle agent never needs to change.
package kinematics

import (
	"encoding/json"
	"fmt"
)

// MotionModel is the contract every kinematics implementation satisfies.
// Distances are in metres, velocities in m/s and time in seconds.
type MotionModel interface {
	// Step moves the vehicle towards targetV over dt seconds. If targetV is
	// reached before dt expires the vehicle holds it for the remainder.
	// Returns (distance travelled, new velocity).
	Step(v, targetV, dt float64) (dist, newV float64)
}

// Default is the model used when a scenario does not name one.
func Default() MotionModel {
	return ConstantAcceleration{AAcc: 3, ADcc: 0}
}

type discriminator struct {
	Model string `json:"model"`
}

// Decode builds a MotionModel from its JSON form. The "model" key selects the
// implementation; the rest of the object is handed to that implementation.
//
// Supported models:
//   - "constant": fixed a_acc / a_dcc rates.
//   - "instant": speed snaps to the target.
func Decode(raw json.RawMessage) (MotionModel, error) {
	if len(raw) == 0 {
		return Default(), nil
	}
	var d discriminator
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("reading kinematics model discriminator: %w", err)
	}
	switch d.Model {
	case ConstantModelName:
		var k ConstantAcceleration
		if err := json.Unmarshal(raw, &k); err != nil {
			return nil, fmt.Errorf("parsing constant kinematics: %w", err)
		}
		return k, nil
	case InstantModelName, "":
		return Instant{}, nil
	default:
		return nil, fmt.Errorf("unknown kinematics model %q", d.Model)
	}
}
