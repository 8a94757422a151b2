package motion

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/protocol"
)

func TestNewRampPlan_Defaults(t *testing.T) {
	p, err := NewRampPlan(Vector{Z: 10}, 0, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRampSteps, p.Steps)
	assert.InDelta(t, 0.1, p.DistanceIncrement(), 1e-12)
	assert.InDelta(t, 1.0, p.SpeedIncrement(), 1e-12)
}

func TestRampPlan_Validate(t *testing.T) {
	tests := []struct {
		name string
		plan RampPlan
	}{
		{"zero steps", RampPlan{Target: Vector{X: 1}, Steps: 0}},
		{"negative steps", RampPlan{Target: Vector{X: 1}, Steps: -3}},
		{"zero target", RampPlan{Steps: 10}},
		{"negative start", RampPlan{Target: Vector{X: 1}, StartSpeed: -1, Steps: 10}},
		{"negative end", RampPlan{Target: Vector{X: 1}, EndSpeed: -1, Steps: 10}},
		{"nan target", RampPlan{Target: Vector{Y: math.NaN()}, Steps: 10}},
	}
	for _, tt := range tests {
		err := tt.plan.Validate()
		if !assert.ErrorIs(t, err, protocol.ErrInvalidParameter, tt.name) {
			continue
		}
		_, err = tt.plan.Lines()
		assert.ErrorIs(t, err, protocol.ErrInvalidParameter, tt.name)
	}
}

func TestRampPlan_Lines(t *testing.T) {
	tests := []struct {
		target     Vector
		start, end float64
		steps      int
	}{
		{Vector{Z: 10}, 0, 100, 100},
		{Vector{X: 3, Y: 4}, 20, 80, 7},
		{Vector{X: -1, Y: 2, Z: -2}, 50, 10, 3},
		{Vector{X: 5}, 10, 10, 1},
	}

	for _, tt := range tests {
		p, err := NewRampPlan(tt.target, tt.start, tt.end, tt.steps)
		require.NoError(t, err)

		lines, err := p.Lines()
		require.NoError(t, err)
		require.Len(t, lines, tt.steps)

		var sum Vector
		inc := (tt.end - tt.start) / float64(tt.steps)
		for i, l := range lines {
			assert.Equal(t, protocol.OpDescartesPointOffset, l.Opcode())
			params := l.Params()
			require.Len(t, params, 4, "ramp steps carry four fields")

			v := parseParams(t, params)
			sum.X += v[0]
			sum.Y += v[1]
			sum.Z += v[2]
			assert.InDelta(t, tt.start+float64(i)*inc, v[3], 1e-9, "speed of step %d", i)
		}

		assert.InDelta(t, tt.target.X, sum.X, 1e-9)
		assert.InDelta(t, tt.target.Y, sum.Y, 1e-9)
		assert.InDelta(t, tt.target.Z, sum.Z, 1e-9)
		assert.InDelta(t, 1.0, p.Fraction()*float64(tt.steps), 1e-12)

		// last speed is one increment short of the end speed
		_, last := p.Step(tt.steps - 1)
		assert.InDelta(t, tt.start+float64(tt.steps-1)*inc, last, 1e-9)
	}
}

func parseParams(t *testing.T, params []string) []float64 {
	t.Helper()
	out := make([]float64, len(params))
	for i, s := range params {
		v, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}
