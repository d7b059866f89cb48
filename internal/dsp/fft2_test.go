package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/gophaser/internal/errs"
)

func planeWave(rows, cols, kr, kc int) [][]complex128 {
	grid := make([][]complex128, rows)
	for r := range grid {
		grid[r] = make([]complex128, cols)
		for c := range grid[r] {
			phase := 2 * math.Pi * (float64(kr*r)/float64(rows) + float64(kc*c)/float64(cols))
			grid[r][c] = cmplx.Exp(complex(0, phase))
		}
	}
	return grid
}

func argmax2(g Grid) (int, int) {
	br, bc, best := 0, 0, math.Inf(-1)
	for r, row := range g.Values {
		for c, v := range row {
			if v > best {
				br, bc, best = r, c, v
			}
		}
	}
	return br, bc
}

func TestFFT2PlaneWavePeak(t *testing.T) {
	grid := planeWave(8, 16, 3, 5)
	out, err := FFT2(grid, GridOptions{})
	require.NoError(t, err)
	require.Equal(t, 8, out.Rows)
	require.Equal(t, 16, out.Cols)

	r, c := argmax2(out)
	assert.Equal(t, 3, r)
	assert.Equal(t, 5, c)
	assert.InDelta(t, 8*16, out.Values[3][5], 1e-9)
}

func TestFFT2ShiftCentersDC(t *testing.T) {
	grid := planeWave(4, 8, 0, 0)
	out, err := FFT2(grid, GridOptions{Shift: true, DB: true})
	require.NoError(t, err)
	r, c := argmax2(out)
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
}

func TestFFT2Windows(t *testing.T) {
	grid := planeWave(8, 8, 1, 2)
	out, err := FFT2(grid, GridOptions{RowWindow: MakeWindow(Blackman, 8), ColumnWindow: MakeWindow(Hann, 8)})
	require.NoError(t, err)
	r, c := argmax2(out)
	assert.Equal(t, 1, r)
	assert.Equal(t, 2, c)
}

func TestFFT2RejectsBadShapes(t *testing.T) {
	_, err := FFT2([][]complex128{{1, 2}}, GridOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FFT2([][]complex128{{1, 2}, {3}}, GridOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FFT2(planeWave(4, 4, 0, 0), GridOptions{RowWindow: MakeWindow(Hann, 3)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FFT2(planeWave(4, 4, 0, 0), GridOptions{ColumnWindow: MakeWindow(Hann, 5)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestGridCrop(t *testing.T) {
	g := Grid{Rows: 2, Cols: 3, Values: [][]float64{{1, 2, 3}, {4, 5, 6}}}
	out, err := g.Crop(1, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, out.Values)

	out.Values[0][0] = 99
	assert.Equal(t, 1.0, g.Values[0][0], "crop must copy")

	_, err = g.Crop(3, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
