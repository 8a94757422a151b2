package motion

import (
	"fmt"
	"math"

	"github.com/gwillem/armctl/pkg/protocol"
)

// DefaultRampSteps is the number of micro-moves a ramp is split into.
const DefaultRampSteps = 100

// Vector is a cartesian displacement.
type Vector struct {
	X, Y, Z float64
}

// Norm returns the euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Scale returns v multiplied by f.
func (v Vector) Scale(f float64) Vector {
	return Vector{v.X * f, v.Y * f, v.Z * f}
}

// RampPlan splits a relative world move into Steps micro-moves whose speed
// climbs linearly from StartSpeed towards EndSpeed.
type RampPlan struct {
	Target     Vector
	StartSpeed float64
	EndSpeed   float64
	Steps      int
}

// NewRampPlan builds and validates a plan. steps <= 0 selects DefaultRampSteps.
func NewRampPlan(target Vector, startSpeed, endSpeed float64, steps int) (RampPlan, error) {
	if steps <= 0 {
		steps = DefaultRampSteps
	}
	p := RampPlan{Target: target, StartSpeed: startSpeed, EndSpeed: endSpeed, Steps: steps}
	if err := p.Validate(); err != nil {
		return RampPlan{}, err
	}
	return p, nil
}

// Validate checks the plan invariants.
func (p RampPlan) Validate() error {
	if p.Steps < 1 {
		return fmt.Errorf("%w: ramp needs at least one step, got %d", protocol.ErrInvalidParameter, p.Steps)
	}
	for _, v := range []float64{p.Target.X, p.Target.Y, p.Target.Z, p.StartSpeed, p.EndSpeed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite ramp value", protocol.ErrInvalidParameter)
		}
	}
	if p.StartSpeed < 0 || p.EndSpeed < 0 {
		return fmt.Errorf("%w: ramp speeds must not be negative", protocol.ErrInvalidParameter)
	}
	if p.Target.Norm() == 0 {
		return fmt.Errorf("%w: ramp target is zero", protocol.ErrInvalidParameter)
	}
	return nil
}

// DistanceIncrement is the path length covered by each step.
func (p RampPlan) DistanceIncrement() float64 {
	return p.Target.Norm() / float64(p.Steps)
}

// SpeedIncrement is the speed change between consecutive steps.
func (p RampPlan) SpeedIncrement() float64 {
	return (p.EndSpeed - p.StartSpeed) / float64(p.Steps)
}

// Fraction is the share of the target each step covers.
func (p RampPlan) Fraction() float64 {
	return p.DistanceIncrement() / p.Target.Norm()
}

// Step returns the displacement and speed of step i (0-indexed).
func (p RampPlan) Step(i int) (Vector, float64) {
	return p.Target.Scale(p.Fraction()), p.StartSpeed + float64(i)*p.SpeedIncrement()
}

// Lines encodes every step of the plan.
func (p RampPlan) Lines() ([]protocol.Line, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	lines := make([]protocol.Line, p.Steps)
	for i := range lines {
		d, speed := p.Step(i)
		l, err := protocol.RampStep(d.X, d.Y, d.Z, speed)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		lines[i] = l
	}
	return lines, nil
}
