// Package errs holds the error taxonomy shared by the signal-processing and
// array-control packages. None of these errors are retried by the core.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports a malformed buffer, window or grid shape.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfiguration reports non-physical radar or array parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrShapeMismatch reports a frame whose geometry disagrees with Nd/Nr.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrAcquisitionFailure reports an I/O error from the acquisition or
	// array-control collaborator.
	ErrAcquisitionFailure = errors.New("acquisition failure")
)

// Input returns an ErrInvalidInput with context.
func Input(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Configuration returns an ErrInvalidConfiguration with context.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Shape returns an ErrShapeMismatch with context.
func Shape(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// Acquisition wraps a collaborator error so that both errors.Is(err,
// ErrAcquisitionFailure) and errors.Is(err, cause) hold. A nil cause yields nil.
func Acquisition(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrAcquisitionFailure, cause))
}
