package storage

import (
	"context"

	"github.com/poiesic/auditrag/core"
)

// RowRepository provides operations on rows grouped by target table.
// Implementations must be thread-safe and support concurrent access.
type RowRepository interface {
	// UpsertRow writes one row into table inside a single transaction.
	// If a row with the same RecordID exists it is overwritten (all columns
	// and the embedding), otherwise it is inserted. Sets UpdatedAt.
	// Failures wrap ErrStoreWrite.
	UpsertRow(ctx context.Context, table string, row *core.Row) error

	// GetRow retrieves a single row by its record identifier.
	// Returns ErrNotFound if the row doesn't exist.
	GetRow(ctx context.Context, table, recordID string) (*core.Row, error)

	// CountRows returns the number of rows stored in table.
	CountRows(ctx context.Context, table string) (int, error)

	// ForEachRow calls fn for every row of table in natural store order.
	// Iteration stops at the first error returned by fn.
	ForEachRow(ctx context.Context, table string, fn func(row *core.Row) error) error

	// FindSimilar returns up to limit rows of table ranked by descending cosine
	// similarity to vector. Rows with equal scores keep natural store order.
	// Rows whose embedding dimension differs from vector are skipped.
	FindSimilar(ctx context.Context, table string, vector []float32, limit int) ([]*core.SimilarityResult, error)
}

// OutcomeRepository persists the most recent ingestion outcome per file.
type OutcomeRepository interface {
	// SaveOutcome stores outcome, replacing any previous outcome for the same file.
	SaveOutcome(ctx context.Context, outcome *core.IngestOutcome) error

	// LoadOutcome retrieves the last outcome recorded for file.
	// Returns nil, nil if no outcome exists.
	LoadOutcome(ctx context.Context, file string) (*core.IngestOutcome, error)

	// ListOutcomes returns every stored outcome ordered by file name.
	ListOutcomes(ctx context.Context) ([]*core.IngestOutcome, error)
}

// Store is a storage backend exposing both repositories.
type Store interface {
	Rows() RowRepository
	Outcomes() OutcomeRepository

	// Close closes the storage backend and releases resources.
	Close() error
}
