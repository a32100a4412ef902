package store

import "errors"

var (
	// ErrUnreachable indicates the record store could not be reached.
	// This is a local fatal condition; the invocation aborts.
	ErrUnreachable = errors.New("record store unreachable")

	// ErrEmptyUpdate indicates a bulk update with no rows.
	ErrEmptyUpdate = errors.New("no embedding updates to apply")
)
