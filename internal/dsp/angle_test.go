package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
)

func TestPhaseThetaRoundTrip(t *testing.T) {
	tests := []struct {
		phase   float64
		freq    float64
		spacing float64
	}{
		{phase: 30, freq: 10.525e9, spacing: 0.014},
		{phase: -45, freq: 10.525e9, spacing: 0.014},
		{phase: 90, freq: 2.3e9, spacing: 0.5 * SpeedOfLight / 2.3e9},
	}

	for _, tt := range tests {
		theta, err := PhaseToTheta(tt.phase, tt.freq, tt.spacing, SpeedOfLight)
		require.NoError(t, err)
		recovered, err := ThetaToPhase(theta, tt.freq, tt.spacing, SpeedOfLight)
		require.NoError(t, err)
		if math.Abs(recovered-tt.phase) > 1e-6 {
			t.Fatalf("round trip mismatch: %.3f vs %.3f", tt.phase, recovered)
		}
	}
}

func TestPhaseToThetaBoresight(t *testing.T) {
	theta, err := PhaseToTheta(0, 10e9, 0.015, SpeedOfLight)
	require.NoError(t, err)
	assert.Equal(t, 0.0, theta)
}

func TestPhaseToThetaClampsOutOfDomain(t *testing.T) {
	// Half-wavelength spacing: 180 degrees maps to exactly 90, anything
	// beyond must clamp instead of producing NaN.
	spacing := 0.5 * SpeedOfLight / 10e9
	for _, phase := range []float64{180, 180.0000001, 250, -400} {
		theta, err := PhaseToTheta(phase, 10e9, spacing, SpeedOfLight)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(theta), "phase %g", phase)
		assert.InDelta(t, 90, math.Abs(theta), 1e-5, "phase %g", phase)
	}
}

func TestSteeringRejectsNonPhysicalConfig(t *testing.T) {
	_, err := PhaseToTheta(10, 0, 0.01, SpeedOfLight)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	_, err = PhaseToTheta(10, 1e9, -0.01, SpeedOfLight)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	_, err = ThetaToPhase(10, 1e9, 0, SpeedOfLight)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct {
		in, unsigned, signed float64
	}{
		{in: 0, unsigned: 0, signed: 0},
		{in: 360, unsigned: 0, signed: 0},
		{in: -90, unsigned: 270, signed: -90},
		{in: 540, unsigned: 180, signed: 180},
		{in: -180, unsigned: 180, signed: 180},
		{in: 725, unsigned: 5, signed: 5},
		{in: 190, unsigned: 190, signed: -170},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.unsigned, WrapDegrees(tt.in), 1e-9, "WrapDegrees(%g)", tt.in)
		assert.InDelta(t, tt.signed, WrapDegreesSigned(tt.in), 1e-9, "WrapDegreesSigned(%g)", tt.in)
	}
}
