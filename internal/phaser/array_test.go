package phaser

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
)

type recordingController struct {
	states []ArrayState
	err    error
}

func (r *recordingController) Latch(_ context.Context, s ArrayState) error {
	if r.err != nil {
		return r.err
	}
	r.states = append(r.states, s)
	return nil
}

func TestChannelOf(t *testing.T) {
	want := []int{0, 0, 0, 0, 1, 1, 1, 1}
	for i, ch := range want {
		assert.Equal(t, ch, ChannelOf(i), "element %d", i)
	}
}

func TestArrayRejectsBadIndex(t *testing.T) {
	a := NewArray(&recordingController{})
	for _, i := range []int{-1, 8, 100} {
		assert.ErrorIs(t, a.SetElementPhase(i, 10), errs.ErrInvalidInput)
		assert.ErrorIs(t, a.SetElementGain(i, 10), errs.ErrInvalidInput)
	}
	assert.ErrorIs(t, a.SetElementPhase(0, math.NaN()), errs.ErrInvalidInput)
}

func TestArrayStagesUntilLatch(t *testing.T) {
	ctrl := &recordingController{}
	a := NewArray(ctrl)

	require.NoError(t, a.SetElementPhase(2, -90))
	require.NoError(t, a.SetElementGain(5, 200))
	assert.Equal(t, 270.0, a.Staged()[2].PhaseDeg)
	assert.Equal(t, MaxGainCode, a.Staged()[5].GainCode)
	assert.Equal(t, 0.0, a.Committed()[2].PhaseDeg, "setters must not commit")

	require.NoError(t, a.Latch(context.Background()))
	assert.Equal(t, a.Staged(), a.Committed())
	require.Len(t, ctrl.states, 1)
	assert.Equal(t, 270.0, ctrl.states[0][2].PhaseDeg)
	assert.Equal(t, 2, ctrl.states[0][2].Index)
}

func TestArrayLatchIsIdempotent(t *testing.T) {
	ctrl := &recordingController{}
	a := NewArray(ctrl)
	a.SetAllGains(64)
	require.NoError(t, a.SetAllPhases([NumElements]float64{0, 10, 20, 30, 40, 50, 60, 370}))

	require.NoError(t, a.Latch(context.Background()))
	first := a.Committed()
	require.NoError(t, a.Latch(context.Background()))
	assert.Equal(t, first, a.Committed())
	require.Len(t, ctrl.states, 2)
	assert.Equal(t, ctrl.states[0], ctrl.states[1])
	assert.Equal(t, 10.0, first[7].PhaseDeg)
	assert.Equal(t, 2, a.Latches())
}

func TestArrayFailedLatchKeepsCommitted(t *testing.T) {
	ctrl := &recordingController{}
	a := NewArray(ctrl)
	a.SetAllGains(10)
	require.NoError(t, a.Latch(context.Background()))
	before := a.Committed()

	cause := errors.New("spi timeout")
	ctrl.err = cause
	a.SetAllGains(99)
	err := a.Latch(context.Background())
	assert.ErrorIs(t, err, errs.ErrAcquisitionFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, before, a.Committed())
	assert.Equal(t, 99, a.Staged()[0].GainCode)
}

func TestArrayLatchHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl := &recordingController{}
	a := NewArray(ctrl)
	assert.ErrorIs(t, a.Latch(ctx), context.Canceled)
	assert.Empty(t, ctrl.states)
}

func TestApplyGainCalibration(t *testing.T) {
	tests := []struct {
		code int
		gcal float64
		want int
	}{
		{code: 64, gcal: 1, want: 64},
		{code: 64, gcal: 0.5, want: 32},
		{code: 127, gcal: 0.8, want: 102},
		{code: 100, gcal: 2, want: MaxGainCode},
		{code: 10, gcal: -1, want: 0},
		{code: 3, gcal: 0.5, want: 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ApplyGainCalibration(tt.code, tt.gcal), "code %d gcal %g", tt.code, tt.gcal)
	}
}

func TestCalibrationVectorValidate(t *testing.T) {
	require.NoError(t, DefaultCalibration().Validate())

	v := DefaultCalibration()
	v.Phase[3] = 180
	assert.NoError(t, v.Validate())
	v.Phase[3] = -180
	assert.ErrorIs(t, v.Validate(), errs.ErrInvalidConfiguration)

	v = DefaultCalibration()
	v.Gain[1] = 0
	assert.ErrorIs(t, v.Validate(), errs.ErrInvalidConfiguration)

	v = DefaultCalibration()
	v.Channel[0] = math.Inf(1)
	assert.ErrorIs(t, v.Validate(), errs.ErrInvalidConfiguration)
}

func TestChannelScale(t *testing.T) {
	v := DefaultCalibration()
	v.Channel = [NumChannels]float64{0, 20}
	scale := v.ChannelScale()
	assert.Equal(t, 1.0, scale[0])
	assert.InDelta(t, 10, scale[1], 1e-12)
}

func TestNormalize(t *testing.T) {
	points := []AnglePoint{{PowerDB: -3, DeltaDB: -10}, {PowerDB: 7.5, DeltaDB: 1}, {PowerDB: 2}}
	Normalize(points)
	assert.Equal(t, 0.0, points[1].PowerDB)
	assert.Equal(t, -10.5, points[0].PowerDB)
	assert.Equal(t, -17.5, points[0].DeltaDB)
	Normalize(nil)
}

func TestSweepSteps(t *testing.T) {
	cfg := DefaultSweepConfig()
	steps := cfg.Steps()
	require.Len(t, steps, 180)
	assert.Equal(t, -180.0, steps[0])
	assert.Equal(t, 178.0, steps[179])

	cfg.StartDeg, cfg.StopDeg, cfg.StepDeg = 0, 10, 3
	assert.Equal(t, []float64{0, 3, 6, 9}, cfg.Steps())
}
