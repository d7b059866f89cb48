package iq

import (
	"testing"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	frame := Frame{make(Buffer, 4), make(Buffer, 4), make(Buffer, 4)}
	require.NoError(t, frame.Validate(3, 4))

	assert.ErrorIs(t, frame.Validate(2, 4), errs.ErrShapeMismatch)
	assert.ErrorIs(t, frame.Validate(3, 8), errs.ErrShapeMismatch)

	frame[1] = make(Buffer, 3)
	assert.ErrorIs(t, frame.Validate(3, 4), errs.ErrShapeMismatch)
}

func TestFrameColumn(t *testing.T) {
	frame := Frame{{1, 2}, {3, 4}, {5, 6}}
	col, err := frame.Column(1)
	require.NoError(t, err)
	assert.Equal(t, Buffer{2, 4, 6}, col)

	_, err = frame.Column(2)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestWidenAndEnergy(t *testing.T) {
	in := []complex64{1 + 1i, 2}
	out := Widen(in)
	assert.Equal(t, Buffer{1 + 1i, 2}, out)
	assert.InDelta(t, 6.0, Energy(in), 1e-12)
	assert.InDelta(t, 6.0, Energy(out), 1e-12)
	assert.Equal(t, Buffer{1, -2}, FromReal([]float64{1, -2}))
}
