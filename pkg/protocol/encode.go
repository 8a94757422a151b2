package protocol

import (
	"fmt"
	"strconv"
)

// WorldOffsetBlend is the fixed trailing parameter of the explicit world offset command.
const WorldOffsetBlend = 50

// AxisSpace selects the coordinate frame addressed by jog and ramp commands.
type AxisSpace int

const (
	Joint AxisSpace = 0
	World AxisSpace = 1
)

func (s AxisSpace) String() string {
	switch s {
	case Joint:
		return "joint"
	case World:
		return "world"
	default:
		return fmt.Sprintf("AxisSpace(%d)", int(s))
	}
}

// Direction of a continuous jog.
type Direction int

const (
	Negative Direction = 0
	Positive Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "+"
	case Negative:
		return "-"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Reset homes the arm at the given speed.
func Reset(speed int) (Line, error) {
	if err := checkSpeed(speed); err != nil {
		return Line{}, err
	}
	return NewLine(OpOrigin, strconv.Itoa(speed)), nil
}

// Stop is the emergency stop.
func Stop() Line {
	return NewLine(OpStop)
}

// JointMove moves to absolute joint angles.
func JointMove(x, y, z float64, speed int) (Line, error) {
	return move(OpJointAngle, x, y, z, speed)
}

// JointOffset moves relative to the current joint angles.
func JointOffset(x, y, z float64, speed int) (Line, error) {
	return move(OpJointAngleOffset, x, y, z, speed)
}

// WorldMove moves to an absolute cartesian point.
func WorldMove(x, y, z float64, speed int) (Line, error) {
	return move(OpDescartesPoint, x, y, z, speed)
}

// WorldOffset moves relative to the current cartesian point. It carries the
// fixed blend parameter and so has five fields, unlike RampStep.
func WorldOffset(x, y, z float64, speed int) (Line, error) {
	l, err := move(OpDescartesPointOffset, x, y, z, speed)
	if err != nil {
		return Line{}, err
	}
	l.params = append(l.params, strconv.Itoa(WorldOffsetBlend))
	return l, nil
}

// LineMove moves to an absolute cartesian point along a straight line.
func LineMove(x, y, z float64, speed int) (Line, error) {
	return move(OpDescartesLine, x, y, z, speed)
}

// LineOffset moves relative to the current point along a straight line.
func LineOffset(x, y, z float64, speed int) (Line, error) {
	return move(OpDescartesLinearOffset, x, y, z, speed)
}

// Suction switches the suction cup.
func Suction(on bool) Line {
	if on {
		return NewLine(OpSuction, "1")
	}
	return NewLine(OpSuction, "0")
}

// SpeedSet changes the arm's default speed.
func SpeedSet(speed int) (Line, error) {
	if err := checkSpeed(speed); err != nil {
		return Line{}, err
	}
	return NewLine(OpSpeed, strconv.Itoa(speed)), nil
}

// JogStart begins continuous motion of one axis until JogStop.
func JogStart(space AxisSpace, axis int, dir Direction) (Line, error) {
	if space != Joint && space != World {
		return Line{}, fmt.Errorf("%w: axis space %d", ErrInvalidParameter, int(space))
	}
	if axis < 1 || axis > 3 {
		return Line{}, fmt.Errorf("%w: axis %d not in 1..3", ErrInvalidParameter, axis)
	}
	if dir != Positive && dir != Negative {
		return Line{}, fmt.Errorf("%w: direction %d", ErrInvalidParameter, int(dir))
	}
	return NewLine(OpMovStart,
		strconv.Itoa(int(space)),
		strconv.Itoa(axis),
		strconv.Itoa(int(dir)),
	), nil
}

// JogStop ends a continuous jog.
func JogStop() Line {
	return NewLine(OpMovStop)
}

// RampStep is one micro-move of a ramp. It reuses the world offset opcode
// with four fields; the firmware tells the two forms apart by arity.
func RampStep(dx, dy, dz, speed float64) (Line, error) {
	if !finite(dx, dy, dz, speed) {
		return Line{}, fmt.Errorf("%w: non-finite ramp step", ErrInvalidParameter)
	}
	if speed < 0 {
		return Line{}, fmt.Errorf("%w: speed %s is negative", ErrInvalidParameter, FormatNumber(speed))
	}
	return NewLine(OpDescartesPointOffset,
		FormatNumber(dx),
		FormatNumber(dy),
		FormatNumber(dz),
		FormatNumber(speed),
	), nil
}

func move(opcode string, x, y, z float64, speed int) (Line, error) {
	if !finite(x, y, z) {
		return Line{}, fmt.Errorf("%w: non-finite coordinate", ErrInvalidParameter)
	}
	if err := checkSpeed(speed); err != nil {
		return Line{}, err
	}
	return NewLine(opcode,
		FormatNumber(x),
		FormatNumber(y),
		FormatNumber(z),
		strconv.Itoa(speed),
	), nil
}

func checkSpeed(speed int) error {
	if speed < 0 {
		return fmt.Errorf("%w: speed %d is negative", ErrInvalidParameter, speed)
	}
	return nil
}
