// Package protocol encodes operator requests into the arm's ASCII command lines.
//
// Every command is a single line: an opcode, optionally followed by an
// underscore and comma separated parameters, terminated by '\n'.
//
//	DescartesPoint_10,0,0,50
//	MovStp
package protocol

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidParameter is returned for malformed or out-of-range operator input.
var ErrInvalidParameter = errors.New("invalid parameter")

// Opcodes understood by the arm firmware.
const (
	OpOrigin                = "Origin"
	OpStop                  = "Stop"
	OpJointAngle            = "JointAngle"
	OpJointAngleOffset      = "JointAngleOffset"
	OpDescartesPoint        = "DescartesPoint"
	OpDescartesPointOffset  = "DescartesPointOffset"
	OpDescartesLine         = "DescartesLine"
	OpDescartesLinearOffset = "DescartesLinearOffset"
	OpSuction               = "Suction"
	OpSpeed                 = "Speed"
	OpMovStart              = "MovStart"
	OpMovStop               = "MovStp"
)

// Line is an encoded command. The zero value is not a valid command.
type Line struct {
	opcode string
	params []string
}

// NewLine builds a line from an opcode and already formatted parameters.
func NewLine(opcode string, params ...string) Line {
	p := make([]string, len(params))
	copy(p, params)
	return Line{opcode: opcode, params: p}
}

// Opcode returns the command family identifier.
func (l Line) Opcode() string {
	return l.opcode
}

// Params returns a copy of the formatted parameters.
func (l Line) Params() []string {
	p := make([]string, len(l.params))
	copy(p, l.params)
	return p
}

// String returns the line without the trailing newline.
func (l Line) String() string {
	if len(l.params) == 0 {
		return l.opcode
	}
	return l.opcode + "_" + strings.Join(l.params, ",")
}

// Bytes returns the wire form of the line, newline included.
func (l Line) Bytes() []byte {
	return []byte(l.String() + "\n")
}

// IsZero reports whether l was never built.
func (l Line) IsZero() bool {
	return l.opcode == ""
}

// FormatNumber renders v in its shortest natural decimal form:
// 10 -> "10", 0.5 -> "0.5", -2.25 -> "-2.25".
func FormatNumber(v float64) string {
	if v == 0 {
		// avoid "-0"
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
