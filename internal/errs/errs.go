// Package errs defines the error kinds reported by the trainer.
//
// Failures are wrapped with context using fmt.Errorf("...: %w", err) and
// classified with errors.Is against these sentinels.
package errs

import "errors"

var (
	// ErrConfiguration reports a missing or invalid configuration value.
	ErrConfiguration = errors.New("configuration error")

	// ErrFormat reports an input file with unexpected layout or dtype.
	ErrFormat = errors.New("format error")

	// ErrShapeMismatch reports an architecture that does not fit the data.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIO reports a failed read or write, including corrupt checkpoints.
	ErrIO = errors.New("i/o error")

	// ErrNumericInstability reports a non-finite loss.
	ErrNumericInstability = errors.New("numeric instability")
)
