package dsp

import (
	"fmt"
	"math"
	"strings"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

// WindowKind selects a tapering function.
type WindowKind int

const (
	Rectangular WindowKind = iota
	Hamming
	Hann
	Blackman
)

func (k WindowKind) String() string {
	switch k {
	case Rectangular:
		return "rectangular"
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	case Blackman:
		return "blackman"
	default:
		return "unknown"
	}
}

// ParseWindow converts a configuration string to a WindowKind.
func ParseWindow(s string) (WindowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rectangular", "rect", "none", "":
		return Rectangular, nil
	case "hamming":
		return Hamming, nil
	case "hann", "hanning":
		return Hann, nil
	case "blackman":
		return Blackman, nil
	default:
		return Rectangular, fmt.Errorf("unsupported window %q", s)
	}
}

// MakeWindow returns a symmetric window of length n.
// If n is zero or negative, an empty slice is returned.
func MakeWindow(kind WindowKind, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	win := make([]float64, n)
	if n == 1 {
		win[0] = 1
		return win
	}
	den := float64(n - 1)
	for i := range win {
		x := 2 * math.Pi * float64(i) / den
		switch kind {
		case Hamming:
			win[i] = 0.54 - 0.46*math.Cos(x)
		case Hann:
			win[i] = 0.5 - 0.5*math.Cos(x)
		case Blackman:
			// numpy.blackman coefficients; endpoints evaluate to ~1e-17, clamp to 0.
			v := 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
			if v < 0 {
				v = 0
			}
			win[i] = v
		default:
			win[i] = 1
		}
	}
	return win
}

// ApplyWindow multiplies the input samples with the provided window.
// The window length must match the input length.
func ApplyWindow[S iq.Sample](samples []S, window []float64) ([]complex128, error) {
	if len(samples) != len(window) {
		return nil, errs.Input("window length %d does not match buffer length %d", len(window), len(samples))
	}
	out := make([]complex128, len(samples))
	for i, v := range samples {
		c := complex128(v)
		out[i] = complex(real(c)*window[i], imag(c)*window[i])
	}
	return out, nil
}
