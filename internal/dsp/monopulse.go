package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// MonopulsePhase correlates sum and delta FFT bins and returns the resulting phase (radians).
// This is the classic correlation-based monopulse: angle ∝ arg( Σ conj(S) * Δ ).
func MonopulsePhase(sumFFT, deltaFFT []complex128, start, end int) float64 {
	n := len(sumFFT)
	if len(deltaFFT) < n {
		n = len(deltaFFT)
	}
	s, e := binRange(n, start, end)
	if s == e {
		return 0
	}

	var corr complex128
	for i := s; i < e; i++ {
		corr += cmplx.Conj(sumFFT[i]) * deltaFFT[i]
	}
	return cmplx.Phase(corr)
}

// NoiseFloor averages db over [start, end) excluding a one-bin guard on each
// side of signalBin.
func NoiseFloor(db []float64, start, end, signalBin int) (float64, bool) {
	s, e := binRange(len(db), start, end)
	if s == e {
		return 0, false
	}
	vals := make([]float64, 0, e-s)
	for i := s; i < e; i++ {
		if i >= signalBin-1 && i <= signalBin+1 {
			continue
		}
		v := db[i]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return 0, false
	}
	return stat.Mean(vals, nil), true
}

// EstimateSNR computes peak minus noise floor (dB) for the given band.
func EstimateSNR(db []float64, peakBin int, start, end int) float64 {
	s, e := binRange(len(db), start, end)
	if s == e || peakBin < 0 || peakBin >= len(db) {
		return 0
	}
	noise, ok := NoiseFloor(db, s, e, peakBin)
	if !ok {
		return 0
	}
	snr := db[peakBin] - noise
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		return 0
	}
	return snr
}
