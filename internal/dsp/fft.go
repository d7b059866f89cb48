package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

// MinDB is the floor used when a bin has zero magnitude, so dB spectra never
// contain -Inf.
const MinDB = -300.0

// SpectrumOptions controls FFT post-processing.
type SpectrumOptions struct {
	// Window tapers the input; nil means rectangular. Its length must equal
	// the buffer length.
	Window []float64
	// DB reports 10*log10(|X|^2) instead of |X|.
	DB bool
	// Shift reorders bins so zero frequency sits at index n/2.
	Shift bool
	// Normalize divides coefficients by the window sum (coherent gain).
	Normalize bool
	// SampleRate fills Frequencies when positive.
	SampleRate float64
}

// Spectrum is the output of a one-dimensional FFT.
type Spectrum struct {
	Coefficients []complex128
	// Values holds |X| or, when DB was requested, 10*log10(|X|^2).
	Values      []float64
	Frequencies []float64
	DB          bool
	Shifted     bool
}

// FFT computes the magnitude spectrum of x. Buffers shorter than two samples
// are rejected.
func FFT[S iq.Sample](x []S, opts SpectrumOptions) (Spectrum, error) {
	n := len(x)
	if n < 2 {
		return Spectrum{}, errs.Input("spectrum needs at least 2 samples, got %d", n)
	}
	var (
		seq []complex128
		err error
	)
	if opts.Window != nil {
		seq, err = ApplyWindow(x, opts.Window)
		if err != nil {
			return Spectrum{}, err
		}
	} else {
		seq = iq.Widen(x)
	}

	coeffs := fourier.NewCmplxFFT(n).Coefficients(nil, seq)
	if opts.Normalize {
		sum := float64(n)
		if opts.Window != nil {
			sum = floats.Sum(opts.Window)
		}
		if sum != 0 {
			for i := range coeffs {
				coeffs[i] /= complex(sum, 0)
			}
		}
	}
	if opts.Shift {
		coeffs = FFTShift(coeffs)
	}

	out := Spectrum{
		Coefficients: coeffs,
		Values:       magnitudes(coeffs, opts.DB),
		DB:           opts.DB,
		Shifted:      opts.Shift,
	}
	if opts.SampleRate > 0 {
		out.Frequencies = FrequencyAxis(n, opts.SampleRate, opts.Shift)
	}
	return out, nil
}

// PowerDB converts a magnitude to 10*log10(mag^2), floored at MinDB.
func PowerDB(mag float64) float64 {
	if mag <= 0 || math.IsNaN(mag) {
		return MinDB
	}
	db := 20 * math.Log10(mag)
	if db < MinDB {
		return MinDB
	}
	return db
}

func magnitudes(coeffs []complex128, db bool) []float64 {
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag := cmplx.Abs(c)
		if db {
			out[i] = PowerDB(mag)
			continue
		}
		out[i] = mag
	}
	return out
}

// FFTShift returns a copy of data rotated so the zero-frequency bin is at
// index len/2, matching numpy.fft.fftshift for odd and even lengths.
func FFTShift[T any](data []T) []T {
	n := len(data)
	out := make([]T, 0, n)
	if n == 0 {
		return out
	}
	k := n - n/2
	out = append(out, data[k:]...)
	return append(out, data[:k]...)
}

// FrequencyAxis returns the bin centre frequencies for an n-point FFT at the
// given sample rate in numpy.fft.fftfreq order, or centred when shift is set.
func FrequencyAxis(n int, sampleRate float64, shift bool) []float64 {
	if n <= 0 {
		return []float64{}
	}
	axis := make([]float64, n)
	step := sampleRate / float64(n)
	for i := range axis {
		k := i
		if i > (n-1)/2 {
			k = i - n
		}
		axis[i] = float64(k) * step
	}
	if shift {
		return FFTShift(axis)
	}
	return axis
}

// PeakBin returns the index and value of the largest element in
// values[start:end). ok is false when the clamped interval is empty.
func PeakBin(values []float64, start, end int) (bin int, peak float64, ok bool) {
	s, e := binRange(len(values), start, end)
	if s == e {
		return 0, 0, false
	}
	idx := floats.MaxIdx(values[s:e])
	return s + idx, values[s+idx], true
}

// binRange clamps [start,end) to [0,n).
// If the resulting interval is empty, it returns (0,0).
func binRange(n, start, end int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > n {
		end = n
	}
	if start >= end {
		return 0, 0
	}
	return start, end
}
