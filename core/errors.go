package core

import "errors"

var (
	// ErrMalformedToken indicates a correlation key that cannot be decoded.
	ErrMalformedToken = errors.New("malformed request token")

	// ErrUnknownCollection indicates a collection with no registered spec.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrInvalidStatus indicates a status value outside the state machine.
	ErrInvalidStatus = errors.New("invalid job status")
)
