package fmcw

import (
	"math"
	"math/rand"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

// Target is a point reflector moving radially at constant velocity;
// range(t) = Range0 + Velocity*t.
type Target struct {
	Range0   float64 `json:"range0"`
	Velocity float64 `json:"velocity"`
}

// RangeAt returns the target range at time t.
func (tg Target) RangeAt(t float64) float64 { return tg.Range0 + tg.Velocity*t }

// Transmit holds one synthesized transmit chirp.
type Transmit struct {
	Phase     []float64 // radians
	Frequency []float64 // Hz
	Waveform  []float64
}

// Receive holds the echo of one chirp from a Target.
type Receive struct {
	Phase    []float64 // radians
	Delay    []float64 // round-trip delay, seconds
	Waveform []float64
}

// ChirpModel generates ideal transmit, receive and IF signals.
type ChirpModel struct {
	p RadarParameters
}

// NewChirpModel returns a model for validated parameters.
func NewChirpModel(p RadarParameters) (*ChirpModel, error) {
	if !p.Valid() {
		if _, err := NewRadarParameters(p.Config()); err != nil {
			return nil, err
		}
		return nil, errs.Configuration("radar parameters were not built with NewRadarParameters")
	}
	return &ChirpModel{p: p}, nil
}

// Parameters returns the model's radar parameters.
func (m *ChirpModel) Parameters() RadarParameters { return m.p }

// ChirpAxis returns the Nr fast-time sample instants n*Tchirp/Nr.
func (m *ChirpModel) ChirpAxis() []float64 {
	n := m.p.SamplesPerChirp()
	dt := 1 / m.p.SampleRate()
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i) * dt
	}
	return axis
}

// TransmitPhase is the transmit phase law 2*pi*(fc*t + slope*t^2/2).
func (m *ChirpModel) TransmitPhase(t float64) float64 {
	return 2 * math.Pi * (m.p.Carrier()*t + m.p.Slope()*t*t/2)
}

// Delay returns the round-trip delay 2*range(t)/c.
func (m *ChirpModel) Delay(t float64, target Target) float64 {
	return 2 * target.RangeAt(t) / m.p.SpeedOfLight()
}

// SynthesizeTransmit evaluates the transmit chirp on the time axis.
func (m *ChirpModel) SynthesizeTransmit(t []float64) Transmit {
	out := Transmit{
		Phase:     make([]float64, len(t)),
		Frequency: make([]float64, len(t)),
		Waveform:  make([]float64, len(t)),
	}
	for i, ti := range t {
		out.Phase[i] = m.TransmitPhase(ti)
		out.Frequency[i] = m.p.Carrier() + m.p.Slope()*ti
		out.Waveform[i] = math.Cos(out.Phase[i])
	}
	return out
}

// SynthesizeReceive evaluates the echo: the transmit phase law delayed by
// td(t).
func (m *ChirpModel) SynthesizeReceive(t []float64, target Target) Receive {
	out := Receive{
		Phase:    make([]float64, len(t)),
		Delay:    make([]float64, len(t)),
		Waveform: make([]float64, len(t)),
	}
	for i, ti := range t {
		td := m.Delay(ti, target)
		out.Delay[i] = td
		out.Phase[i] = m.TransmitPhase(ti - td)
		out.Waveform[i] = math.Cos(out.Phase[i])
	}
	return out
}

// Dechirp mixes transmit and receive phase laws into the IF waveform
// cos(txPhase - rxPhase).
func Dechirp(txPhase, rxPhase []float64) ([]float64, error) {
	if len(txPhase) != len(rxPhase) {
		return nil, errs.Input("transmit phase has %d samples, receive phase %d", len(txPhase), len(rxPhase))
	}
	out := make([]float64, len(txPhase))
	for i := range txPhase {
		out[i] = math.Cos(txPhase[i] - rxPhase[i])
	}
	return out, nil
}

// IFFrequency is the range beat frequency slope*td(t).
func (m *ChirpModel) IFFrequency(t float64, target Target) float64 {
	return m.p.Slope() * m.Delay(t, target)
}

// BeatFrequency is the exact time derivative of the IF phase divided by 2*pi.
// For a stationary target it equals IFFrequency; motion adds the Doppler term
// (2v/c)*(fc + slope*(t - td)).
func (m *ChirpModel) BeatFrequency(t float64, target Target) float64 {
	td := m.Delay(t, target)
	rate := 2 * target.Velocity / m.p.SpeedOfLight()
	return m.p.Slope()*td + rate*(m.p.Carrier()+m.p.Slope()*(t-td))
}

// InstantaneousFrequency differentiates a phase law (radians) sampled on t and
// returns Hz. Interior points use central differences.
func InstantaneousFrequency(phase, t []float64) ([]float64, error) {
	n := len(phase)
	if n != len(t) {
		return nil, errs.Input("phase has %d samples, time axis %d", n, len(t))
	}
	if n < 2 {
		return nil, errs.Input("need at least 2 samples, got %d", n)
	}
	out := make([]float64, n)
	for i := range out {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}
		out[i] = (phase[hi] - phase[lo]) / (t[hi] - t[lo]) / (2 * math.Pi)
	}
	return out, nil
}

// IF returns the dechirped IF waveform of one chirp for the target.
func (m *ChirpModel) IF(t []float64, target Target) []float64 {
	tx := m.SynthesizeTransmit(t)
	rx := m.SynthesizeReceive(t, target)
	out, _ := Dechirp(tx.Phase, rx.Phase)
	return out
}

// SynthesizeFrame builds Nd chirps of IF samples. Chirp k starts at slow time
// k*(Tchirp+idle); the transmit phase law restarts with every chirp while the
// target keeps moving.
func (m *ChirpModel) SynthesizeFrame(target Target) iq.Frame {
	return m.SynthesizeFrameNoisy(target, 0, nil)
}

// SynthesizeFrameNoisy is SynthesizeFrame with additive white Gaussian noise of
// standard deviation sigma. rng may be nil when sigma is zero.
func (m *ChirpModel) SynthesizeFrameNoisy(target Target, sigma float64, rng *rand.Rand) iq.Frame {
	axis := m.ChirpAxis()
	nd := m.p.ChirpsPerFrame()
	frame := make(iq.Frame, nd)
	for k := 0; k < nd; k++ {
		start := float64(k) * m.p.ChirpInterval()
		chirpTarget := Target{Range0: target.RangeAt(start), Velocity: target.Velocity}
		samples := m.IF(axis, chirpTarget)
		if sigma > 0 && rng != nil {
			for i := range samples {
				samples[i] += rng.NormFloat64() * sigma
			}
		}
		frame[k] = iq.FromReal(samples)
	}
	return frame
}
