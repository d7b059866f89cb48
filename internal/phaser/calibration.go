package phaser

import (
	"math"
	"time"

	"github.com/rjboer/gophaser/internal/errs"
)

// CalibrationVector holds the per-element gain scale factors, per-element
// phase offsets in degrees and per-channel level offsets in dB.
type CalibrationVector struct {
	Gain    [NumElements]float64 `json:"gain" yaml:"gain"`
	Phase   [NumElements]float64 `json:"phase" yaml:"phase"`
	Channel [NumChannels]float64 `json:"channel" yaml:"channel"`

	RunID     string    `json:"runId,omitempty" yaml:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// DefaultCalibration returns unity gains and zero offsets.
func DefaultCalibration() CalibrationVector {
	var v CalibrationVector
	for i := range v.Gain {
		v.Gain[i] = 1
	}
	return v
}

// Validate checks that every coefficient is finite, gains are positive and
// phases lie in (-180,180].
func (v CalibrationVector) Validate() error {
	for i, g := range v.Gain {
		if !finite(g) || g <= 0 {
			return errs.Configuration("gain calibration of element %d is %g", i, g)
		}
	}
	for i, p := range v.Phase {
		if !finite(p) || p <= -180 || p > 180 {
			return errs.Configuration("phase calibration of element %d is %g, want (-180,180]", i, p)
		}
	}
	for ch, c := range v.Channel {
		if !finite(c) {
			return errs.Configuration("channel calibration of channel %d is %g", ch, c)
		}
	}
	return nil
}

// ChannelScale returns the linear amplitude factors 10^(ccal/20).
func (v CalibrationVector) ChannelScale() [NumChannels]float64 {
	var out [NumChannels]float64
	for ch, db := range v.Channel {
		out[ch] = math.Pow(10, db/20)
	}
	return out
}

// ApplyGainCalibration scales a gain code by gcal, rounds and clamps it to
// [0,MaxGainCode].
func ApplyGainCalibration(code int, gcal float64) int {
	return clampGain(int(math.Round(float64(code) * gcal)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
