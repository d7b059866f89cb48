package fmcw

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
)

func newModel(t *testing.T) *ChirpModel {
	t.Helper()
	p, err := NewRadarParameters(DefaultRadarConfig())
	require.NoError(t, err)
	m, err := NewChirpModel(p)
	require.NoError(t, err)
	return m
}

func TestChirpAxis(t *testing.T) {
	m := newModel(t)
	axis := m.ChirpAxis()
	require.Len(t, axis, 1024)
	assert.Equal(t, 0.0, axis[0])
	step := m.Parameters().ChirpDuration() / 1024
	assert.InDelta(t, step, axis[1], 1e-18)
	assert.InDelta(t, 1023*step, axis[1023], 1e-15)
}

func TestTransmitFrequencySweepsBandwidth(t *testing.T) {
	m := newModel(t)
	p := m.Parameters()
	tx := m.SynthesizeTransmit([]float64{0, p.ChirpDuration()})
	assert.InDelta(t, p.Carrier(), tx.Frequency[0], 1e-3)
	assert.InDelta(t, p.Carrier()+p.Bandwidth(), tx.Frequency[1], 1)
	assert.Equal(t, 0.0, tx.Phase[0])
	assert.Equal(t, 1.0, tx.Waveform[0])
}

func TestReceiveDelayTracksTarget(t *testing.T) {
	m := newModel(t)
	target := Target{Range0: 150, Velocity: -10}
	rx := m.SynthesizeReceive([]float64{0, 1e-6}, target)
	assert.InDelta(t, 2*150/3e8, rx.Delay[0], 1e-18)
	assert.InDelta(t, 2*(150-10e-6)/3e8, rx.Delay[1], 1e-18)
	assert.InDelta(t, m.TransmitPhase(-rx.Delay[0]), rx.Phase[0], 1e-9)
}

func TestDechirpIFMatchesRangeBeatForStationaryTarget(t *testing.T) {
	m := newModel(t)
	axis := m.ChirpAxis()
	for _, r0 := range []float64{5, 100, 180} {
		target := Target{Range0: r0}
		tx := m.SynthesizeTransmit(axis)
		rx := m.SynthesizeReceive(axis, target)

		ifPhase := make([]float64, len(axis))
		for i := range axis {
			ifPhase[i] = tx.Phase[i] - rx.Phase[i]
		}
		inst, err := InstantaneousFrequency(ifPhase, axis)
		require.NoError(t, err)

		for _, i := range []int{0, 1, 300, 777, len(axis) - 1} {
			want := m.IFFrequency(axis[i], target)
			assert.InDelta(t, want, inst[i], want*1e-6, "r0=%g sample %d", r0, i)
			assert.InDelta(t, want, m.BeatFrequency(axis[i], target), 1e-6)
		}
	}
}

func TestDechirpIFMatchesBeatForMovingTarget(t *testing.T) {
	m := newModel(t)
	p := m.Parameters()
	axis := m.ChirpAxis()
	target := Target{Range0: 60, Velocity: 35}
	tx := m.SynthesizeTransmit(axis)
	rx := m.SynthesizeReceive(axis, target)

	ifPhase := make([]float64, len(axis))
	for i := range axis {
		ifPhase[i] = tx.Phase[i] - rx.Phase[i]
	}
	inst, err := InstantaneousFrequency(ifPhase, axis)
	require.NoError(t, err)

	doppler := 2 * target.Velocity / p.SpeedOfLight() * p.Carrier()
	for _, i := range []int{1, 512, len(axis) - 2} {
		assert.InDelta(t, m.BeatFrequency(axis[i], target), inst[i], 1, "sample %d", i)
		// Away from the Doppler term the range beat is slope*td(t).
		assert.InDelta(t, m.IFFrequency(axis[i], target), inst[i]-doppler, 200, "sample %d", i)
	}
}

func TestDechirpWaveform(t *testing.T) {
	out, err := Dechirp([]float64{0, math.Pi, 1}, []float64{0, 0, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -1, 1}, out, 1e-12)

	_, err = Dechirp([]float64{0, 1}, []float64{0})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestInstantaneousFrequencyRejectsBadInput(t *testing.T) {
	_, err := InstantaneousFrequency([]float64{1}, []float64{0})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = InstantaneousFrequency([]float64{1, 2}, []float64{0})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSynthesizeFrameShape(t *testing.T) {
	m := newModel(t)
	frame := m.SynthesizeFrame(Target{Range0: 50})
	nd, nr := frame.Shape()
	assert.Equal(t, 128, nd)
	assert.Equal(t, 1024, nr)
	require.NoError(t, frame.Validate(128, 1024))

	// Stationary target: every chirp is identical.
	assert.InDelta(t, real(frame[0][10]), real(frame[127][10]), 1e-9)
	for _, v := range frame[3] {
		assert.Equal(t, 0.0, imag(v))
	}
}

func TestSynthesizeFrameNoisyIsSeeded(t *testing.T) {
	m := newModel(t)
	a := m.SynthesizeFrameNoisy(Target{Range0: 50}, 0.1, rand.New(rand.NewSource(7)))
	b := m.SynthesizeFrameNoisy(Target{Range0: 50}, 0.1, rand.New(rand.NewSource(7)))
	clean := m.SynthesizeFrame(Target{Range0: 50})
	assert.Equal(t, a[5][100], b[5][100])
	assert.NotEqual(t, clean[5][100], a[5][100])
}
