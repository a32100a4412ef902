package ledger

import "errors"

var (
	// ErrCorrupt indicates the ledger document could not be decoded.
	ErrCorrupt = errors.New("ledger document is corrupt")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("ledger store is closed")
)
