package dsp

import (
	"math"

	"github.com/rjboer/gophaser/internal/errs"
)

// SpeedOfLight is the propagation speed used when a configuration leaves it
// unset.
const SpeedOfLight = 3e8

const degToRad = math.Pi / 180.0

// SteeringRatio returns c*phase/(2*pi*f*d), the sine of the steering angle
// before clamping. freqHz and spacingM must be positive.
func SteeringRatio(phaseDeg, freqHz, spacingM, c float64) (float64, error) {
	if freqHz <= 0 || spacingM <= 0 || c <= 0 {
		return 0, errs.Configuration("steering needs positive frequency, spacing and propagation speed (f=%g d=%g c=%g)", freqHz, spacingM, c)
	}
	return c * phaseDeg * degToRad / (2 * math.Pi * freqHz * spacingM), nil
}

// PhaseToTheta converts an inter-element phase difference (degrees) to a
// steering angle (degrees). The asin argument is clamped to [-1, 1] because
// rounding can push it just outside the domain at the edge of the sweep.
func PhaseToTheta(phaseDeg, freqHz, spacingM, c float64) (float64, error) {
	ratio, err := SteeringRatio(phaseDeg, freqHz, spacingM, c)
	if err != nil {
		return 0, err
	}
	return math.Asin(Clamp(ratio, -1, 1)) / degToRad, nil
}

// ThetaToPhase converts a steering angle (degrees) back to a phase
// difference (degrees).
func ThetaToPhase(thetaDeg, freqHz, spacingM, c float64) (float64, error) {
	if freqHz <= 0 || spacingM <= 0 || c <= 0 {
		return 0, errs.Configuration("steering needs positive frequency, spacing and propagation speed (f=%g d=%g c=%g)", freqHz, spacingM, c)
	}
	phaseRad := math.Sin(thetaDeg*degToRad) * 2 * math.Pi * freqHz * spacingM / c
	return phaseRad / degToRad, nil
}

// WrapDegrees maps an angle to [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}

// WrapDegreesSigned maps an angle to (-180, 180].
func WrapDegreesSigned(deg float64) float64 {
	w := WrapDegrees(deg)
	if w > 180 {
		w -= 360
	}
	return w
}

// Clamp limits value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
