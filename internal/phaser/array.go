// Package phaser steers and calibrates an 8-element analog beamformer whose
// elements are summed into two receive channels.
package phaser

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rjboer/gophaser/internal/dsp"
	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

const (
	NumElements = 8
	NumChannels = 2
	// MaxGainCode is the largest element attenuator code.
	MaxGainCode = 127
	// PhaseLSB is the phase-shifter resolution in degrees (6 bits over 360).
	PhaseLSB = 360.0 / 128
)

// ChannelOf returns the receive channel element i is summed into: elements
// 0-3 feed channel 0 and 4-7 feed channel 1.
func ChannelOf(element int) int {
	if element < NumElements/2 {
		return 0
	}
	return 1
}

// ArrayElement is the staged or committed setting of one element.
type ArrayElement struct {
	Index    int     `json:"index" yaml:"index"`
	PhaseDeg float64 `json:"phaseDeg" yaml:"phase_deg"`
	GainCode int     `json:"gainCode" yaml:"gain_code"`
}

// ArrayState is the full element table. It is latched as a unit.
type ArrayState [NumElements]ArrayElement

// NewArrayState returns a table with indices filled in, zero phase and the
// given gain code on every element.
func NewArrayState(gainCode int) ArrayState {
	var s ArrayState
	for i := range s {
		s[i] = ArrayElement{Index: i, GainCode: clampGain(gainCode)}
	}
	return s
}

// Phases returns the element phases in degrees.
func (s ArrayState) Phases() [NumElements]float64 {
	var out [NumElements]float64
	for i, e := range s {
		out[i] = e.PhaseDeg
	}
	return out
}

// Gains returns the element gain codes.
func (s ArrayState) Gains() [NumElements]int {
	var out [NumElements]int
	for i, e := range s {
		out[i] = e.GainCode
	}
	return out
}

// Acquirer delivers one buffer of complex samples per requested channel.
type Acquirer interface {
	Acquire(ctx context.Context, channels int) ([][]complex64, error)
}

// Controller commits a complete element table to the hardware in one step.
type Controller interface {
	Latch(ctx context.Context, state ArrayState) error
}

// CalibrationStore persists calibration vectors between runs.
type CalibrationStore interface {
	LoadCalibration(ctx context.Context) (CalibrationVector, error)
	SaveCalibration(ctx context.Context, vec CalibrationVector) error
}

// Array keeps a staged element table and the last table the controller
// accepted. Setters only touch the staged copy; Latch commits it.
type Array struct {
	mu        sync.Mutex
	ctrl      Controller
	staged    ArrayState
	committed ArrayState
	latches   int
}

// NewArray returns an array whose staged and committed tables have zero
// phase and full gain.
func NewArray(ctrl Controller) *Array {
	s := NewArrayState(MaxGainCode)
	return &Array{ctrl: ctrl, staged: s, committed: s}
}

func checkIndex(i int) error {
	if i < 0 || i >= NumElements {
		return errs.Input("element index %d outside [0,%d)", i, NumElements)
	}
	return nil
}

func clampGain(code int) int {
	if code < 0 {
		return 0
	}
	if code > MaxGainCode {
		return MaxGainCode
	}
	return code
}

// SetElementPhase stages a phase for element i, wrapped to [0,360).
func (a *Array) SetElementPhase(i int, deg float64) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return errs.Input("element %d phase %g is not finite", i, deg)
	}
	a.mu.Lock()
	a.staged[i].PhaseDeg = dsp.WrapDegrees(deg)
	a.mu.Unlock()
	return nil
}

// SetElementGain stages a gain code for element i, clamped to [0,MaxGainCode].
func (a *Array) SetElementGain(i int, code int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	a.mu.Lock()
	a.staged[i].GainCode = clampGain(code)
	a.mu.Unlock()
	return nil
}

// SetAllPhases stages every element phase.
func (a *Array) SetAllPhases(deg [NumElements]float64) error {
	for i, d := range deg {
		if err := a.SetElementPhase(i, d); err != nil {
			return err
		}
	}
	return nil
}

// SetAllGains stages the same gain code on every element.
func (a *Array) SetAllGains(code int) {
	a.mu.Lock()
	for i := range a.staged {
		a.staged[i].GainCode = clampGain(code)
	}
	a.mu.Unlock()
}

// SetGains stages per-element gain codes.
func (a *Array) SetGains(codes [NumElements]int) {
	a.mu.Lock()
	for i := range a.staged {
		a.staged[i].GainCode = clampGain(codes[i])
	}
	a.mu.Unlock()
}

// Staged returns a copy of the staged table.
func (a *Array) Staged() ArrayState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staged
}

// Committed returns a copy of the last latched table.
func (a *Array) Committed() ArrayState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// Latches reports how many latches the controller accepted.
func (a *Array) Latches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latches
}

// Latch hands the staged table to the controller. Latching an unchanged table
// commits the same state again. On failure the committed table is untouched.
func (a *Array) Latch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.staged
	if a.ctrl != nil {
		if err := a.ctrl.Latch(ctx, state); err != nil {
			return errs.Acquisition("latch array state", err)
		}
	}
	a.committed = state
	a.latches++
	return nil
}

// acquire reads both channels and widens them to complex128.
func acquire(ctx context.Context, acq Acquirer) ([NumChannels]iq.Buffer, error) {
	var out [NumChannels]iq.Buffer
	if acq == nil {
		return out, errs.Configuration("no acquirer configured")
	}
	raw, err := acq.Acquire(ctx, NumChannels)
	if err != nil {
		return out, errs.Acquisition("acquire samples", err)
	}
	if len(raw) < NumChannels {
		return out, errs.Acquisition("acquire samples", fmt.Errorf("got %d channels, want %d", len(raw), NumChannels))
	}
	for ch := 0; ch < NumChannels; ch++ {
		if len(raw[ch]) == 0 {
			return out, errs.Acquisition("acquire samples", fmt.Errorf("channel %d returned an empty buffer", ch))
		}
		out[ch] = iq.Widen(raw[ch])
	}
	if len(out[0]) != len(out[1]) {
		return out, errs.Acquisition("acquire samples", fmt.Errorf("channel lengths differ: %d vs %d", len(out[0]), len(out[1])))
	}
	return out, nil
}

// combine returns s0*ch0 + s1*ch1 (sign=+1) or s0*ch0 - s1*ch1 (sign=-1).
func combine(ch [NumChannels]iq.Buffer, scale [NumChannels]float64, sign float64) iq.Buffer {
	out := make(iq.Buffer, len(ch[0]))
	s0 := complex(scale[0], 0)
	s1 := complex(sign*scale[1], 0)
	for i := range out {
		out[i] = s0*ch[0][i] + s1*ch[1][i]
	}
	return out
}
