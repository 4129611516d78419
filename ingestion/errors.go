package ingestion

import "errors"

var (
	// ErrRoutingTableRequired is returned when a routing table is not provided.
	ErrRoutingTableRequired = errors.New("routing table required")

	// ErrRowRepositoryRequired is returned when a row repository is not provided.
	ErrRowRepositoryRequired = errors.New("row repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrLedgerRequired is returned when a ledger is not provided.
	ErrLedgerRequired = errors.New("ledger required")

	// ErrNotRouted is returned when a file name has no route.
	ErrNotRouted = errors.New("file is not routed")

	// ErrAlreadyProcessed is returned when a file is already in the ledger.
	ErrAlreadyProcessed = errors.New("file already processed")

	// ErrInvalidMarkPolicy is returned for an unknown mark policy name.
	ErrInvalidMarkPolicy = errors.New("invalid mark policy")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
