// Package iq defines the complex sample containers shared by the FMCW and
// phased-array processing paths.
package iq

import "github.com/rjboer/gophaser/internal/errs"

// Sample is satisfied by both sample widths in use: complex64 at the
// acquisition boundary and complex128 inside the processing core.
type Sample interface {
	~complex64 | ~complex128
}

// Buffer is one fixed-length run of IQ samples. A producer must not modify a
// Buffer after handing it downstream.
type Buffer []complex128

// Frame is one coherent processing interval: Nd chirps of Nr samples each.
type Frame []Buffer

// Shape returns the chirp count and the length of the first chirp.
func (f Frame) Shape() (chirps, samples int) {
	if len(f) == 0 {
		return 0, 0
	}
	return len(f), len(f[0])
}

// Validate checks that the frame holds exactly nd chirps of nr samples.
func (f Frame) Validate(nd, nr int) error {
	if len(f) != nd {
		return errs.Shape("frame has %d chirps, want %d", len(f), nd)
	}
	for i, chirp := range f {
		if len(chirp) != nr {
			return errs.Shape("chirp %d has %d samples, want %d", i, len(chirp), nr)
		}
	}
	return nil
}

// Column gathers sample index idx from every chirp (slow-time sequence).
func (f Frame) Column(idx int) (Buffer, error) {
	out := make(Buffer, len(f))
	for k, chirp := range f {
		if idx < 0 || idx >= len(chirp) {
			return nil, errs.Input("sample index %d outside chirp %d of length %d", idx, k, len(chirp))
		}
		out[k] = chirp[idx]
	}
	return out, nil
}

// Widen converts any sample slice to complex128.
func Widen[S Sample](in []S) Buffer {
	out := make(Buffer, len(in))
	for i, v := range in {
		out[i] = complex128(v)
	}
	return out
}

// FromReal lifts a real waveform into a Buffer with zero imaginary part.
func FromReal(in []float64) Buffer {
	out := make(Buffer, len(in))
	for i, v := range in {
		out[i] = complex(v, 0)
	}
	return out
}

// Energy returns the sum of |x|^2.
func Energy[S Sample](in []S) float64 {
	var sum float64
	for _, v := range in {
		c := complex128(v)
		sum += real(c)*real(c) + imag(c)*imag(c)
	}
	return sum
}
