package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat("x", " 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	for _, bad := range []string{"", "  ", "abc", "1,5", "NaN", "Inf"} {
		_, err := ParseFloat("x", bad)
		assert.ErrorIs(t, err, ErrInvalidParameter, "input %q", bad)
	}
}

func TestParseSpeed(t *testing.T) {
	v, err := ParseSpeed("50")
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	for _, bad := range []string{"-1", "1.5", "fast", ""} {
		_, err := ParseSpeed(bad)
		assert.ErrorIs(t, err, ErrInvalidParameter, "input %q", bad)
	}
}

func TestParseBaud(t *testing.T) {
	v, err := ParseBaud("115200")
	require.NoError(t, err)
	assert.Equal(t, 115200, v)

	_, err = ParseBaud("0")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestParseVector(t *testing.T) {
	x, y, z, err := ParseVector("10", "0", "-3")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 0, -3}, []float64{x, y, z})

	_, _, _, err = ParseVector("10", "y", "0")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "y")
}

func TestParseJogFields(t *testing.T) {
	space, err := ParseAxisSpace("World")
	require.NoError(t, err)
	assert.Equal(t, World, space)

	space, err = ParseAxisSpace("0")
	require.NoError(t, err)
	assert.Equal(t, Joint, space)

	_, err = ParseAxisSpace("tool")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	axis, err := ParseAxis("3")
	require.NoError(t, err)
	assert.Equal(t, 3, axis)

	_, err = ParseAxis("4")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	dir, err := ParseDirection("-")
	require.NoError(t, err)
	assert.Equal(t, Negative, dir)

	dir, err = ParseDirection("pos")
	require.NoError(t, err)
	assert.Equal(t, Positive, dir)

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRaw(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Stop", "Stop\n"},
		{"  DescartesPoint_1,2,3,4 ", "DescartesPoint_1,2,3,4\n"},
		{"Custom_", "Custom_\n"},
	}
	for _, tt := range tests {
		l, err := Raw(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(l.Bytes()))
	}

	_, err := Raw("   ")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Raw("Stop\nOrigin_10")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
