package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFloat parses a numeric field typed by the operator.
func ParseFloat(field, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidParameter, field)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || !finite(v) {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidParameter, field, text)
	}
	return v, nil
}

// ParseSpeed parses a non-negative integer speed.
func ParseSpeed(text string) (int, error) {
	text = strings.TrimSpace(text)
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: speed %q is not an integer", ErrInvalidParameter, text)
	}
	if err := checkSpeed(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ParseBaud parses a positive integer baud rate.
func ParseBaud(text string) (int, error) {
	text = strings.TrimSpace(text)
	v, err := strconv.Atoi(text)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: baud rate %q", ErrInvalidParameter, text)
	}
	return v, nil
}

// ParseVector parses three coordinate fields.
func ParseVector(x, y, z string) (float64, float64, float64, error) {
	fx, err := ParseFloat("x", x)
	if err != nil {
		return 0, 0, 0, err
	}
	fy, err := ParseFloat("y", y)
	if err != nil {
		return 0, 0, 0, err
	}
	fz, err := ParseFloat("z", z)
	if err != nil {
		return 0, 0, 0, err
	}
	return fx, fy, fz, nil
}

// ParseAxisSpace accepts "joint", "world" or their numeric codes.
func ParseAxisSpace(text string) (AxisSpace, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "joint", "j", "0":
		return Joint, nil
	case "world", "w", "1":
		return World, nil
	}
	return 0, fmt.Errorf("%w: axis space %q", ErrInvalidParameter, text)
}

// ParseAxis accepts an axis index 1..3.
func ParseAxis(text string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v < 1 || v > 3 {
		return 0, fmt.Errorf("%w: axis %q not in 1..3", ErrInvalidParameter, text)
	}
	return v, nil
}

// ParseDirection accepts "+"/"-", "pos"/"neg" or the numeric codes.
func ParseDirection(text string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "+", "pos", "positive", "1":
		return Positive, nil
	case "-", "neg", "negative", "0":
		return Negative, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrInvalidParameter, text)
}

// Raw turns operator free text into a line. The text is sent as typed; only
// a trailing newline is added.
func Raw(text string) (Line, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Line{}, fmt.Errorf("%w: empty command", ErrInvalidParameter)
	}
	if strings.ContainsAny(text, "\r\n") {
		return Line{}, fmt.Errorf("%w: command spans several lines", ErrInvalidParameter)
	}
	opcode, params, ok := strings.Cut(text, "_")
	if !ok || params == "" {
		return NewLine(text), nil
	}
	return NewLine(opcode, strings.Split(params, ",")...), nil
}
