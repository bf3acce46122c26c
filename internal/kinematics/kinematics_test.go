package kinematics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantAcceleration_Step(t *testing.T) {
	m := ConstantAcceleration{AAcc: 2, ADcc: 4}

	tests := []struct {
		name          string
		v, target, dt float64
		dist, newV    float64
	}{
		{"accelerate whole step", 0, 10, 1, 1, 2},
		{"reach target mid step", 9, 10, 1, 9*0.5 + 0.25 + 10*0.5, 10},
		{"cruise", 10, 10, 0.5, 5, 10},
		{"brake whole step", 10, 0, 1, 8, 6},
		{"brake to target mid step", 10, 8, 1, 10*0.5 - 0.5 + 8*0.5, 8},
		{"negative target clamps", 0, -3, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, v := m.Step(tt.v, tt.target, tt.dt)
			assert.InDelta(t, tt.dist, dist, 1e-9)
			assert.InDelta(t, tt.newV, v, 1e-9)
		})
	}
}

func TestConstantAcceleration_ZeroRatesAreInstant(t *testing.T) {
	m := ConstantAcceleration{}
	dist, v := m.Step(0, 12, 0.5)
	assert.Equal(t, 6.0, dist)
	assert.Equal(t, 12.0, v)

	dist, v = m.Step(12, 4, 0.5)
	assert.Equal(t, 2.0, dist)
	assert.Equal(t, 4.0, v)
}

func TestInstant_Step(t *testing.T) {
	dist, v := Instant{}.Step(3, 8, 2)
	assert.Equal(t, 16.0, dist)
	assert.Equal(t, 8.0, v)
}

func TestDecode(t *testing.T) {
	m, err := Decode(json.RawMessage(`{"model":"constant","a_acc":1.5,"a_dcc":3}`))
	require.NoError(t, err)
	assert.Equal(t, ConstantAcceleration{AAcc: 1.5, ADcc: 3}, m)

	m, err = Decode(json.RawMessage(`{"model":"instant"}`))
	require.NoError(t, err)
	assert.Equal(t, Instant{}, m)

	m, err = Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), m)

	_, err = Decode(json.RawMessage(`{"model":"warp"}`))
	assert.ErrorContains(t, err, `unknown kinematics model "warp"`)

	_, err = Decode(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
