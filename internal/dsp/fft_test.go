package dsp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/iq"
)

func realTone(n int, bin int) iq.Buffer {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Cos(2 * math.Pi * float64(bin) * float64(i) / float64(n))
	}
	return iq.FromReal(out)
}

func TestFFTComplexTonePeak(t *testing.T) {
	n := 8
	data := make([]complex64, n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * float64(i) / float64(n)
		data[i] = complex64(complex(math.Cos(phase), math.Sin(phase)))
	}
	spec, err := FFT(data, SpectrumOptions{Window: MakeWindow(Hamming, n), Shift: true, DB: true, Normalize: true})
	require.NoError(t, err)
	require.Len(t, spec.Values, n)

	bin, _, ok := PeakBin(spec.Values, 0, n)
	require.True(t, ok)
	if expected := n/2 + 1; bin != expected {
		t.Fatalf("expected peak at %d got %d", expected, bin)
	}
	for _, v := range spec.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("dB spectrum contains %v", v)
		}
	}
}

func TestFFTRealSinusoidPeakMatchesFrequency(t *testing.T) {
	const sampleRate = 1e6
	for _, n := range []int{16, 64, 100, 1024} {
		for _, bin := range []int{1, 3, n / 4, n/2 - 1} {
			x := realTone(n, bin)
			spec, err := FFT(x, SpectrumOptions{DB: true, SampleRate: sampleRate})
			require.NoError(t, err)

			peak, _, ok := PeakBin(spec.Values, 0, n/2+1)
			require.True(t, ok)
			f0 := float64(bin) * sampleRate / float64(n)
			width := sampleRate / float64(n)
			assert.LessOrEqual(t, math.Abs(spec.Frequencies[peak]-f0), width, "n=%d bin=%d", n, bin)
		}
	}
}

func TestFFTBlackmanPeak(t *testing.T) {
	x := realTone(256, 40)
	spec, err := FFT(x, SpectrumOptions{Window: MakeWindow(Blackman, 256)})
	require.NoError(t, err)
	peak, _, _ := PeakBin(spec.Values, 0, 128)
	assert.Equal(t, 40, peak)
}

func TestFFTRejectsBadInput(t *testing.T) {
	_, err := FFT([]complex128{}, SpectrumOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FFT([]complex128{1}, SpectrumOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FFT(make([]complex64, 8), SpectrumOptions{Window: MakeWindow(Hann, 7)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestFFTZeroInputFloorsDB(t *testing.T) {
	spec, err := FFT(make([]complex128, 4), SpectrumOptions{DB: true})
	require.NoError(t, err)
	for _, v := range spec.Values {
		assert.Equal(t, MinDB, v)
	}
}

func TestFFTShift(t *testing.T) {
	tests := []struct {
		in   []complex128
		want []complex128
	}{
		{in: []complex128{0, 1, 2, 3}, want: []complex128{2, 3, 0, 1}},
		{in: []complex128{0, 1, 2, 3, 4}, want: []complex128{3, 4, 0, 1, 2}},
		{in: []complex128{}, want: []complex128{}},
	}
	for _, tt := range tests {
		out := FFTShift(tt.in)
		if diff := cmp.Diff(tt.want, out); diff != "" {
			t.Fatalf("FFTShift(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	in := []float64{0, 1, 2, 3}
	_ = FFTShift(in)
	assert.Equal(t, []float64{0, 1, 2, 3}, in, "input must not be modified")
}

func TestFrequencyAxis(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff([]float64{0, 1, 2, -3, -2, -1}, FrequencyAxis(6, 6, false), approx); diff != "" {
		t.Fatalf("unshifted axis mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1, 2, -2, -1}, FrequencyAxis(5, 5, false), approx); diff != "" {
		t.Fatalf("odd axis mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]float64{-3, -2, -1, 0, 1, 2}, FrequencyAxis(6, 6, true), approx); diff != "" {
		t.Fatalf("shifted axis mismatch:\n%s", diff)
	}
}

func TestPeakBinBand(t *testing.T) {
	vals := []float64{9, 1, 5, 3, 7}
	bin, peak, ok := PeakBin(vals, 1, 4)
	require.True(t, ok)
	assert.Equal(t, 2, bin)
	assert.Equal(t, 5.0, peak)

	_, _, ok = PeakBin(vals, 4, 2)
	assert.False(t, ok)
	_, _, ok = PeakBin(nil, 0, 0)
	assert.False(t, ok)
}

func TestPowerDB(t *testing.T) {
	assert.InDelta(t, 20.0, PowerDB(10), 1e-12)
	assert.Equal(t, MinDB, PowerDB(0))
	assert.Equal(t, MinDB, PowerDB(math.NaN()))
}
