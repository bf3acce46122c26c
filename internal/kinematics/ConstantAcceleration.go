package kinematics

import "math"

const (
	// ConstantModelName is the JSON discriminator for ConstantAcceleration.
	ConstantModelName = "constant"
	// InstantModelName is the JSON discriminator for Instant.
	InstantModelName = "instant"
)

// ConstantAcceleration speeds up and slows down at fixed rates. A zero rate
// means that change happens instantly.
//
// JSON discriminator: "model": "constant"
type ConstantAcceleration struct {
	AAcc float64 `json:"a_acc"` // m/s²
	ADcc float64 `json:"a_dcc"` // m/s², positive
}

func (c ConstantAcceleration) Step(v, targetV, dt float64) (float64, float64) {
	targetV = math.Max(0, targetV)
	switch {
	case v < targetV:
		return c.accelerate(v, targetV, dt)
	case v > targetV:
		return c.decelerate(v, targetV, dt)
	default:
		return targetV * dt, targetV
	}
}

func (c ConstantAcceleration) accelerate(v, targetV, dt float64) (float64, float64) {
	if c.AAcc <= 0 {
		return targetV * dt, targetV
	}
	tToTarget := (targetV - v) / c.AAcc
	if tToTarget <= dt {
		// accelerate, then cruise for the remainder
		s1 := v*tToTarget + 0.5*c.AAcc*tToTarget*tToTarget
		return s1 + targetV*(dt-tToTarget), targetV
	}
	return v*dt + 0.5*c.AAcc*dt*dt, v + c.AAcc*dt
}

func (c ConstantAcceleration) decelerate(v, targetV, dt float64) (float64, float64) {
	if c.ADcc <= 0 {
		return targetV * dt, targetV
	}
	tToTarget := (v - targetV) / c.ADcc
	if tToTarget <= dt {
		s1 := v*tToTarget - 0.5*c.ADcc*tToTarget*tToTarget
		return math.Max(0, s1) + targetV*(dt-tToTarget), targetV
	}
	return math.Max(0, v*dt-0.5*c.ADcc*dt*dt), v - c.ADcc*dt
}

// Instant moves at the target speed for the whole step.
//
// JSON discriminator: "model": "instant"
type Instant struct{}

func (Instant) Step(_, targetV, dt float64) (float64, float64) {
	targetV = math.Max(0, targetV)
	return targetV * dt, targetV
}
