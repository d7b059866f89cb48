package dsp

import (
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/gophaser/internal/errs"
)

// CachedDSP pre-computes the window and FFT plan for a fixed buffer size.
// The array engine transforms one buffer per sweep step, always at the same
// length, so the plan is built once per sweep instead of once per step.
type CachedDSP struct {
	mu        sync.Mutex
	kind      WindowKind
	window    []float64
	windowSum float64
	fftSize   int
	fft       *fourier.CmplxFFT
}

// NewCachedDSP creates a DSP processor for buffers of the given size.
func NewCachedDSP(size int, kind WindowKind) *CachedDSP {
	c := &CachedDSP{kind: kind}
	c.resize(size)
	return c
}

func (c *CachedDSP) resize(size int) {
	c.fftSize = size
	c.window = MakeWindow(c.kind, size)
	c.windowSum = floats.Sum(c.window)
	if size > 0 {
		c.fft = fourier.NewCmplxFFT(size)
	} else {
		c.fft = nil
	}
}

// UpdateSize recreates cached resources for a new FFT size.
func (c *CachedDSP) UpdateSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size == c.fftSize {
		return
	}
	c.resize(size)
}

// Size returns the current FFT size for this cached DSP instance.
func (c *CachedDSP) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fftSize
}

// Spectrum returns the windowed, window-sum normalized spectrum of x in dB.
// Buffers of a different length fall back to the uncached path.
func (c *CachedDSP) Spectrum(x []complex128) (Spectrum, error) {
	c.mu.Lock()
	size, window, sum, plan := c.fftSize, c.window, c.windowSum, c.fft
	c.mu.Unlock()

	if len(x) != size || plan == nil {
		return FFT(x, SpectrumOptions{Window: MakeWindow(c.kind, len(x)), DB: true, Normalize: true})
	}
	if size < 2 {
		return Spectrum{}, errs.Input("spectrum needs at least 2 samples, got %d", size)
	}

	windowed, err := ApplyWindow(x, window)
	if err != nil {
		return Spectrum{}, err
	}
	c.mu.Lock()
	coeffs := plan.Coefficients(nil, windowed)
	c.mu.Unlock()
	if sum != 0 {
		for i := range coeffs {
			coeffs[i] /= complex(sum, 0)
		}
	}
	return Spectrum{Coefficients: coeffs, Values: magnitudes(coeffs, true), DB: true}, nil
}

// PeakMagnitude returns the bin and linear magnitude of the strongest
// spectral line in x.
func (c *CachedDSP) PeakMagnitude(x []complex128) (bin int, mag float64, err error) {
	spec, err := c.Spectrum(x)
	if err != nil {
		return 0, 0, err
	}
	bin, _, _ = PeakBin(spec.Values, 0, len(spec.Values))
	return bin, cmplx.Abs(spec.Coefficients[bin]), nil
}
