package sdr

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/phaser"
)

// ErrSimulatedFailure is returned once a MockPhaser failure budget runs out.
var ErrSimulatedFailure = errors.New("simulated failure")

// MockConfig describes the simulated array and the source illuminating it.
type MockConfig struct {
	SourceAngleDeg  float64
	SignalFreqHz    float64
	ElementSpacingM float64
	SpeedOfLight    float64
	SampleRate      float64
	ToneOffset      float64
	NumSamples      int
	Amplitude       float64
	// ElementGain is the intrinsic linear gain per element; zero means 1.
	ElementGain [phaser.NumElements]float64
	// ElementPhaseDeg is the intrinsic phase error per element.
	ElementPhaseDeg [phaser.NumElements]float64
	// ChannelGainDB is the gain of each receive channel.
	ChannelGainDB [phaser.NumChannels]float64
	NoiseSigma    float64
	Seed          int64
	// FailAcquireAfter makes every acquisition after the first N fail; zero
	// disables the failure.
	FailAcquireAfter int
	// FailLatchAfter does the same for latches.
	FailLatchAfter int
}

// DefaultMockConfig is an HB100-like 10.525 GHz source at boresight, seen
// through 14 mm spacing with a 100 kHz baseband tone.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		SignalFreqHz:    10.525e9,
		ElementSpacingM: 0.014,
		SpeedOfLight:    dsp.SpeedOfLight,
		SampleRate:      30e6,
		ToneOffset:      100e3,
		NumSamples:      1024,
		Amplitude:       1,
		Seed:            1,
	}
}

// MockPhaser simulates the beamformer and its two-channel receiver. Only the
// latched element table influences acquisitions.
type MockPhaser struct {
	mu       sync.Mutex
	cfg      MockConfig
	state    phaser.ArrayState
	rng      *rand.Rand
	latches  int
	acquires int
}

// NewMockPhaser returns a simulator with all elements off.
func NewMockPhaser(cfg MockConfig) *MockPhaser {
	return &MockPhaser{
		cfg:   withMockDefaults(cfg),
		state: phaser.NewArrayState(0),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

func withMockDefaults(cfg MockConfig) MockConfig {
	def := DefaultMockConfig()
	if cfg.SignalFreqHz == 0 {
		cfg.SignalFreqHz = def.SignalFreqHz
	}
	if cfg.ElementSpacingM == 0 {
		cfg.ElementSpacingM = def.ElementSpacingM
	}
	if cfg.SpeedOfLight == 0 {
		cfg.SpeedOfLight = def.SpeedOfLight
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.NumSamples == 0 {
		cfg.NumSamples = def.NumSamples
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = def.Amplitude
	}
	for i, g := range cfg.ElementGain {
		if g == 0 {
			cfg.ElementGain[i] = 1
		}
	}
	return cfg
}

// Init applies the receiver settings from cfg; zero fields keep their value.
func (m *MockPhaser) Init(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.SampleRate < 0 || cfg.NumSamples < 0 {
		return errs.Configuration("sample rate %g and buffer size %d must be non-negative", cfg.SampleRate, cfg.NumSamples)
	}
	if cfg.SampleRate > 0 {
		m.cfg.SampleRate = cfg.SampleRate
	}
	if cfg.SignalFreqHz > 0 {
		m.cfg.SignalFreqHz = cfg.SignalFreqHz
	}
	if cfg.ToneOffset != 0 {
		m.cfg.ToneOffset = cfg.ToneOffset
	}
	if cfg.NumSamples > 0 {
		m.cfg.NumSamples = cfg.NumSamples
	}
	if cfg.ElementSpacingM > 0 {
		m.cfg.ElementSpacingM = cfg.ElementSpacingM
	}
	return nil
}

func (m *MockPhaser) Close() error { return nil }

// SetSourceAngle moves the simulated source.
func (m *MockPhaser) SetSourceAngle(deg float64) {
	m.mu.Lock()
	m.cfg.SourceAngleDeg = deg
	m.mu.Unlock()
}

// Latch records the element table as the active hardware state.
func (m *MockPhaser) Latch(ctx context.Context, state phaser.ArrayState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.FailLatchAfter > 0 && m.latches >= m.cfg.FailLatchAfter {
		return ErrSimulatedFailure
	}
	m.state = state
	m.latches++
	return nil
}

// Acquire synthesizes one buffer per channel. Element i contributes
// g_i*(code_i/127)*exp(j(psi_i + phi_i - i*k*d*sin(theta))) times the
// baseband tone.
func (m *MockPhaser) Acquire(ctx context.Context, channels int) ([][]complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if channels <= 0 || channels > phaser.NumChannels {
		return nil, errs.Input("channel count %d outside [1,%d]", channels, phaser.NumChannels)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.FailAcquireAfter > 0 && m.acquires >= m.cfg.FailAcquireAfter {
		return nil, ErrSimulatedFailure
	}
	m.acquires++

	cfg := m.cfg
	weights := m.channelWeights()
	step := 2 * math.Pi * cfg.ToneOffset / cfg.SampleRate
	out := make([][]complex64, channels)
	for ch := 0; ch < channels; ch++ {
		buf := make([]complex64, cfg.NumSamples)
		w := weights[ch] * complex(cfg.Amplitude, 0)
		for n := range buf {
			v := w * complex(math.Cos(step*float64(n)), math.Sin(step*float64(n)))
			if cfg.NoiseSigma > 0 {
				v += complex(m.rng.NormFloat64()*cfg.NoiseSigma, m.rng.NormFloat64()*cfg.NoiseSigma)
			}
			buf[n] = complex64(v)
		}
		out[ch] = buf
	}
	return out, nil
}

// channelWeights returns the complex gain of each channel for the latched
// table and the current source angle.
func (m *MockPhaser) channelWeights() [phaser.NumChannels]complex128 {
	cfg := m.cfg
	lambda := cfg.SpeedOfLight / cfg.SignalFreqHz
	spatial := 2 * math.Pi * cfg.ElementSpacingM * math.Sin(cfg.SourceAngleDeg*math.Pi/180) / lambda
	var out [phaser.NumChannels]complex128
	for i, e := range m.state {
		amp := cfg.ElementGain[i] * float64(e.GainCode) / phaser.MaxGainCode
		phase := (cfg.ElementPhaseDeg[i]+e.PhaseDeg)*math.Pi/180 - float64(i)*spatial
		out[phaser.ChannelOf(i)] += complex(amp*math.Cos(phase), amp*math.Sin(phase))
	}
	for ch := range out {
		out[ch] *= complex(math.Pow(10, cfg.ChannelGainDB[ch]/20), 0)
	}
	return out
}

// Committed returns the latched element table.
func (m *MockPhaser) Committed() phaser.ArrayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Latches returns how many latches succeeded.
func (m *MockPhaser) Latches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latches
}

// Acquisitions returns how many acquisitions succeeded.
func (m *MockPhaser) Acquisitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}
