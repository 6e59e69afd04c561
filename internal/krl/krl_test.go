package krl

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kvpbridge/internal/joints"
)

func newSet(t *testing.T, n int) *joints.JointSet {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = "joint_" + AxisKey(i)
	}
	js, err := joints.New(names)
	require.NoError(t, err)
	return js
}

func TestAxisKey(t *testing.T) {
	want := []string{"A1", "A2", "A3", "A4", "A5", "A6", "E1", "E2", "E3", "E4", "E5", "E6"}
	for i, w := range want {
		assert.Equal(t, w, AxisKey(i))
	}
}

func TestDecodeState_Degrees(t *testing.T) {
	c, err := NewCodec("", "")
	require.NoError(t, err)
	js := newSet(t, 7)

	raw := "{E6AXIS: A1 0.0, A2 -90.0, A3 90.0, A4 0.0, A5 180.0, A6 45.0, E1 0.0, E2 0.0}"
	require.NoError(t, c.DecodeState(raw, js))

	want := []float64{0, -math.Pi / 2, math.Pi / 2, 0, math.Pi, math.Pi / 4, 0}
	if diff := cmp.Diff(want, js.Position, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("position mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeState_LeavesVelocityAndEffort(t *testing.T) {
	c, _ := NewCodec("AXIS", Radians)
	js := newSet(t, 2)
	js.Velocity[0] = 7
	js.Effort[1] = 8
	require.NoError(t, c.DecodeState("{AXIS: A1 0.5, A2 0.25}", js))
	assert.Equal(t, []float64{0.5, 0.25}, js.Position)
	assert.Equal(t, []float64{7, 0}, js.Velocity)
	assert.Equal(t, []float64{0, 8}, js.Effort)
}

func TestDecodeState_ErrorsLeaveDestinationUntouched(t *testing.T) {
	c, _ := NewCodec("AXIS", Radians)
	js := newSet(t, 3)
	copy(js.Position, []float64{1, 2, 3})

	for _, raw := range []string{
		"",
		"garbage",
		"{AXIS: A1 0.1, A2 0.2}", // missing A3
		"{AXIS: A1}",
		"{AXIS: A1 x, A2 y, A3 z}",
	} {
		err := c.DecodeState(raw, js)
		assert.ErrorIs(t, err, ErrMalformed, "raw %q", raw)
		assert.Equal(t, []float64{1, 2, 3}, js.Position, "raw %q", raw)
	}
}

func TestParse_ToleratesExtraComponents(t *testing.T) {
	got, err := Parse("{E6POS: X 1.5, Y -2, S 'B010', A1 3}")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"X": 1.5, "Y": -2, "A1": 3}, got)

	got, err = Parse("{a1 1,a2 2}")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A1": 1, "A2": 2}, got)
}

func TestEncodeCommand(t *testing.T) {
	c, _ := NewCodec("axis", Degrees)
	js := newSet(t, 3)
	copy(js.Position, []float64{0, math.Pi / 2, -math.Pi})

	got, err := c.EncodeCommand(js)
	require.NoError(t, err)
	assert.Equal(t, "{AXIS: A1 0.000000, A2 90.000000, A3 -180.000000}", got)
}

func TestEncodeDecodeAgree(t *testing.T) {
	c, _ := NewCodec("E6AXIS", Degrees)
	src := newSet(t, 8)
	for i := range src.Position {
		src.Position[i] = float64(i) * 0.1
	}
	raw, err := c.EncodeCommand(src)
	require.NoError(t, err)

	dst := newSet(t, 8)
	require.NoError(t, c.DecodeState(raw, dst))
	if diff := cmp.Diff(src.Position, dst.Position, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("decoded positions differ (-want +got):\n%s", diff)
	}
}

func TestEncodeCommand_RejectsNonFinite(t *testing.T) {
	c, _ := NewCodec("AXIS", Radians)
	js := newSet(t, 2)
	js.Position[1] = math.NaN()
	_, err := c.EncodeCommand(js)
	assert.Error(t, err)
}

func TestNewCodec_BadUnits(t *testing.T) {
	_, err := NewCodec("AXIS", "grad")
	assert.Error(t, err)
}
