package pipeline

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrMissingOutputReference indicates a completed job with no result
	// payload handle; the ledger entry is inconsistent.
	ErrMissingOutputReference = errors.New("completed job has no output reference")
)
