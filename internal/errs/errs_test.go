package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquisitionKeepsCause(t *testing.T) {
	cause := errors.New("usb timeout")
	err := Acquisition("acquire step 3", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisitionFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "acquire step 3")
}

func TestAcquisitionNil(t *testing.T) {
	assert.NoError(t, Acquisition("noop", nil))
}

func TestConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "input", err: Input("len %d", 1), want: ErrInvalidInput},
		{name: "configuration", err: Configuration("slope %g", -1.0), want: ErrInvalidConfiguration},
		{name: "shape", err: Shape("chirps %d", 3), want: ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
		})
	}
}
