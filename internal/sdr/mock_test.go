package sdr

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/phaser"
)

func latchUniform(t *testing.T, m *MockPhaser, gain int, delta float64) {
	t.Helper()
	state := phaser.NewArrayState(gain)
	for i := range state {
		state[i].PhaseDeg = dsp.WrapDegrees(delta * float64(i))
	}
	require.NoError(t, m.Latch(context.Background(), state))
}

func TestMockOnlyLatchedStateMatters(t *testing.T) {
	ctx := context.Background()
	m := NewMockPhaser(DefaultMockConfig())

	data, err := m.Acquire(ctx, 2)
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, complex64(0), data[0][10], "elements start switched off")

	latchUniform(t, m, phaser.MaxGainCode, 0)
	data, err = m.Acquire(ctx, 2)
	require.NoError(t, err)
	require.Len(t, data[0], 1024)
	// Four unit elements in phase at boresight.
	assert.InDelta(t, 4, cmplx.Abs(complex128(data[0][0])), 1e-5)
	assert.InDelta(t, 4, cmplx.Abs(complex128(data[1][0])), 1e-5)
	assert.Equal(t, 1, m.Latches())
	assert.Equal(t, 2, m.Acquisitions())
}

func TestMockSteeringTowardsSource(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultMockConfig()
	cfg.SourceAngleDeg = 20
	m := NewMockPhaser(cfg)

	delta, err := dsp.ThetaToPhase(20, cfg.SignalFreqHz, cfg.ElementSpacingM, cfg.SpeedOfLight)
	require.NoError(t, err)

	latchUniform(t, m, phaser.MaxGainCode, delta)
	data, err := m.Acquire(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4, cmplx.Abs(complex128(data[0][5])), 1e-4)
	assert.InDelta(t, 4, cmplx.Abs(complex128(data[1][5])), 1e-4)

	latchUniform(t, m, phaser.MaxGainCode, 0)
	data, err = m.Acquire(ctx, 2)
	require.NoError(t, err)
	assert.Less(t, cmplx.Abs(complex128(data[0][5])), 3.9)
}

func TestMockIntrinsicErrors(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.ElementGain = [phaser.NumElements]float64{0.5, 0, 0, 0, 0, 0, 0, 0}
	cfg.ChannelGainDB = [phaser.NumChannels]float64{0, -6.0206}
	m := NewMockPhaser(cfg)

	state := phaser.NewArrayState(0)
	state[0].GainCode = phaser.MaxGainCode
	state[4].GainCode = phaser.MaxGainCode
	require.NoError(t, m.Latch(context.Background(), state))
	data, err := m.Acquire(context.Background(), 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cmplx.Abs(complex128(data[0][0])), 1e-4)
	assert.InDelta(t, 0.5, cmplx.Abs(complex128(data[1][0])), 1e-4)
}

func TestMockFailureInjection(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultMockConfig()
	cfg.FailAcquireAfter = 2
	cfg.FailLatchAfter = 1
	m := NewMockPhaser(cfg)

	for i := 0; i < 2; i++ {
		_, err := m.Acquire(ctx, 2)
		require.NoError(t, err)
	}
	_, err := m.Acquire(ctx, 2)
	assert.ErrorIs(t, err, ErrSimulatedFailure)

	require.NoError(t, m.Latch(ctx, phaser.NewArrayState(10)))
	assert.ErrorIs(t, m.Latch(ctx, phaser.NewArrayState(20)), ErrSimulatedFailure)
	assert.Equal(t, 10, m.Committed()[3].GainCode, "failed latch keeps previous table")
}

func TestMockRejectsBadChannelCount(t *testing.T) {
	m := NewMockPhaser(DefaultMockConfig())
	_, err := m.Acquire(context.Background(), 3)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestMockNoiseIsSeeded(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.NoiseSigma = 0.01
	cfg.Seed = 42
	a := NewMockPhaser(cfg)
	b := NewMockPhaser(cfg)
	da, err := a.Acquire(context.Background(), 1)
	require.NoError(t, err)
	db, err := b.Acquire(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.NotEqual(t, complex64(0), da[0][0])
}

func TestMockInit(t *testing.T) {
	m := NewMockPhaser(MockConfig{})
	require.NoError(t, m.Init(context.Background(), Config{NumSamples: 256, SampleRate: 2e6, ToneOffset: 200e3}))
	latchUniform(t, m, phaser.MaxGainCode, 0)
	data, err := m.Acquire(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, data[1], 256)

	assert.ErrorIs(t, m.Init(context.Background(), Config{NumSamples: -1}), errs.ErrInvalidConfiguration)
}

func TestMockRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMockPhaser(DefaultMockConfig())
	_, err := m.Acquire(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Latch(ctx, phaser.ArrayState{}), context.Canceled)
}

func TestSelect(t *testing.T) {
	b, err := Select("mock")
	require.NoError(t, err)
	assert.IsType(t, &MockPhaser{}, b)

	_, err = Select("pluto")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestNewBackendUsesMockConfig(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.NumSamples = 128
	b, err := NewBackend("sim", cfg)
	require.NoError(t, err)
	require.NoError(t, b.Latch(context.Background(), phaser.NewArrayState(phaser.MaxGainCode)))
	data, err := b.Acquire(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, data[0], 128)
	require.NoError(t, b.Close())
}
