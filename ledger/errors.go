package ledger

import "errors"

var (
	// ErrLedgerIO indicates the ledger file could not be read or written.
	// Without a working ledger idempotence cannot be guaranteed, so callers
	// must treat it as fatal.
	ErrLedgerIO = errors.New("ledger i/o error")

	// ErrInvalidIdentifier indicates an identifier that cannot be stored
	// as a single ledger line.
	ErrInvalidIdentifier = errors.New("invalid file identifier")
)
