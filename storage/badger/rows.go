package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
)

// RowRepository implements storage.RowRepository for BadgerDB.
// Rows of a table share a fixed-width key prefix, so natural order is
// byte order of the record identifier.
type RowRepository struct {
	backend *Backend
}

var _ storage.RowRepository = (*RowRepository)(nil)

// NewRowRepository creates a new RowRepository.
func NewRowRepository(backend *Backend) *RowRepository {
	return &RowRepository{backend: backend}
}

func validateTable(table string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: table name is empty", storage.ErrInvalidTable)
	}
	return nil
}

// UpsertRow inserts or overwrites a row in one transaction.
func (r *RowRepository) UpsertRow(ctx context.Context, table string, row *core.Row) error {
	if err := validateTable(table); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStoreWrite, err)
	}
	if err := core.ValidateRow(row); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStoreWrite, err)
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		row.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeRowKey(table, row.RecordID), storage.MarshalRow(row)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: table %s recordid %s: %w", storage.ErrStoreWrite, table, row.RecordID, err)
	}
	return nil
}

// GetRow retrieves a single row by record identifier.
func (r *RowRepository) GetRow(ctx context.Context, table, recordID string) (*core.Row, error) {
	var row *core.Row
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRowKey(table, recordID))
		if err != nil {
			if isNotFound(err) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			row, unmarshalErr = storage.UnmarshalRow(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// CountRows counts the rows of a table without reading their values.
func (r *RowRepository) CountRows(ctx context.Context, table string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeTablePrefix(table)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// ForEachRow calls fn for every row of a table in key order.
func (r *RowRepository) ForEachRow(ctx context.Context, table string, fn func(row *core.Row) error) error {
	return r.backend.iteratePrefix(ctx, makeTablePrefix(table), func(_, val []byte) error {
		row, err := storage.UnmarshalRow(val)
		if err != nil {
			return err
		}
		return fn(row)
	})
}

// FindSimilar scans every row of a table and ranks it by cosine similarity.
func (r *RowRepository) FindSimilar(ctx context.Context, table string, vector []float32, limit int) ([]*core.SimilarityResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	ranker := storage.NewRanker(table, vector)
	err := r.backend.iteratePrefix(ctx, makeTablePrefix(table), func(_, val []byte) error {
		row, err := storage.UnmarshalRow(val)
		if err != nil {
			return err
		}
		ranker.Add(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ranker.Top(limit), nil
}
