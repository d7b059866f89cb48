package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rjboer/gophaser/internal/errs"
)

// GridOptions controls the two-dimensional transform.
type GridOptions struct {
	// RowWindow tapers along each row (length = columns); nil is rectangular.
	RowWindow []float64
	// ColumnWindow tapers along each column (length = rows); nil is rectangular.
	ColumnWindow []float64
	DB           bool
	Shift        bool
}

// Grid is a rows x cols magnitude (or dB) image.
type Grid struct {
	Rows, Cols int
	Values     [][]float64
}

// Crop returns the top-left rows x cols corner of the grid.
func (g Grid) Crop(rows, cols int) (Grid, error) {
	if rows <= 0 || cols <= 0 || rows > g.Rows || cols > g.Cols {
		return Grid{}, errs.Input("crop %dx%d outside %dx%d grid", rows, cols, g.Rows, g.Cols)
	}
	out := Grid{Rows: rows, Cols: cols, Values: make([][]float64, rows)}
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		copy(row, g.Values[r][:cols])
		out.Values[r] = row
	}
	return out, nil
}

// FFT2 computes the 2-D magnitude spectrum of a rectangular grid: an FFT along
// every row followed by an FFT along every column. The input is not modified.
func FFT2(grid [][]complex128, opts GridOptions) (Grid, error) {
	rows := len(grid)
	if rows < 2 {
		return Grid{}, errs.Input("2-D spectrum needs at least 2 rows, got %d", rows)
	}
	cols := len(grid[0])
	if cols < 2 {
		return Grid{}, errs.Input("2-D spectrum needs at least 2 columns, got %d", cols)
	}
	for r, row := range grid {
		if len(row) != cols {
			return Grid{}, errs.Input("row %d has %d columns, want %d", r, len(row), cols)
		}
	}
	if opts.RowWindow != nil && len(opts.RowWindow) != cols {
		return Grid{}, errs.Input("row window length %d does not match %d columns", len(opts.RowWindow), cols)
	}
	if opts.ColumnWindow != nil && len(opts.ColumnWindow) != rows {
		return Grid{}, errs.Input("column window length %d does not match %d rows", len(opts.ColumnWindow), rows)
	}

	rowFFT := fourier.NewCmplxFFT(cols)
	work := make([][]complex128, rows)
	for r, row := range grid {
		seq := make([]complex128, cols)
		for c, v := range row {
			w := 1.0
			if opts.RowWindow != nil {
				w *= opts.RowWindow[c]
			}
			if opts.ColumnWindow != nil {
				w *= opts.ColumnWindow[r]
			}
			seq[c] = v * complex(w, 0)
		}
		work[r] = rowFFT.Coefficients(seq, seq)
	}

	colFFT := fourier.NewCmplxFFT(rows)
	column := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			column[r] = work[r][c]
		}
		colFFT.Coefficients(column, column)
		for r := 0; r < rows; r++ {
			work[r][c] = column[r]
		}
	}

	if opts.Shift {
		work = FFTShift(work)
		for r := range work {
			work[r] = FFTShift(work[r])
		}
	}

	out := Grid{Rows: rows, Cols: cols, Values: make([][]float64, rows)}
	for r := range work {
		out.Values[r] = magnitudes(work[r], opts.DB)
	}
	return out, nil
}
