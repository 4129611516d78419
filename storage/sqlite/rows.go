package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
)

// pageSize bounds how many rows ForEachRow holds between callbacks.
const pageSize = 256

// RowRepository implements storage.RowRepository on SQLite.
// Natural order is insertion order (rowid); an overwrite keeps its rowid.
type RowRepository struct {
	db *DB
}

var _ storage.RowRepository = (*RowRepository)(nil)

// UpsertRow inserts or overwrites a row in one transaction.
func (r *RowRepository) UpsertRow(ctx context.Context, table string, row *core.Row) error {
	if err := core.ValidateRow(row); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStoreWrite, err)
	}
	name, err := r.db.ensureTable(ctx, table)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStoreWrite, err)
	}

	row.UpdatedAt = time.Now().UTC()
	if err := r.upsert(ctx, name, row); err != nil {
		return fmt.Errorf("%w: table %s recordid %s: %w", storage.ErrStoreWrite, table, row.RecordID, err)
	}
	return nil
}

func (r *RowRepository) upsert(ctx context.Context, name string, row *core.Row) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (recordid, payload, embedding, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(recordid) DO UPDATE SET
			payload = excluded.payload,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, name), row.RecordID, storage.MarshalColumns(row.Columns), storage.MarshalVector(row.Vector), row.UpdatedAt.UnixMicro())
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetRow retrieves a single row by record identifier.
func (r *RowRepository) GetRow(ctx context.Context, table, recordID string) (*core.Row, error) {
	name, ok, err := r.db.existingTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}

	var (
		payload, embedding []byte
		updatedAt          int64
	)
	err = r.db.conn.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT payload, embedding, updated_at FROM %s WHERE recordid = ?", name), recordID).
		Scan(&payload, &embedding, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(recordID, payload, embedding, updatedAt)
}

// CountRows returns the number of rows in a table.
func (r *RowRepository) CountRows(ctx context.Context, table string) (int, error) {
	name, ok, err := r.db.existingTable(ctx, table)
	if err != nil || !ok {
		return 0, err
	}
	var count int
	err = r.db.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&count)
	return count, err
}

// ForEachRow calls fn for every row in rowid order. Rows are read a page at
// a time with no cursor open while fn runs, so fn may write to the store.
func (r *RowRepository) ForEachRow(ctx context.Context, table string, fn func(row *core.Row) error) error {
	name, ok, err := r.db.existingTable(ctx, table)
	if err != nil || !ok {
		return err
	}

	var after int64
	for {
		page, last, err := r.page(ctx, name, after)
		if err != nil {
			return err
		}
		for _, row := range page {
			if err := fn(row); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = last
	}
}

func (r *RowRepository) page(ctx context.Context, name string, after int64) ([]*core.Row, int64, error) {
	rows, err := r.db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT rowid, recordid, payload, embedding, updated_at
		FROM %s WHERE rowid > ? ORDER BY rowid LIMIT ?
	`, name), after, pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var (
		page []*core.Row
		last int64
	)
	for rows.Next() {
		row, rowid, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		page = append(page, row)
		last = rowid
	}
	return page, last, rows.Err()
}

// FindSimilar scans a table in rowid order and ranks rows by cosine similarity.
func (r *RowRepository) FindSimilar(ctx context.Context, table string, vector []float32, limit int) ([]*core.SimilarityResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	name, ok, err := r.db.existingTable(ctx, table)
	if err != nil {
		return nil, err
	}
	ranker := storage.NewRanker(table, vector)
	if !ok {
		return ranker.Top(limit), nil
	}

	rows, err := r.db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT rowid, recordid, payload, embedding, updated_at
		FROM %s ORDER BY rowid
	`, name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		row, _, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		ranker.Add(row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ranker.Top(limit), nil
}

func scanRow(rows *sql.Rows) (*core.Row, int64, error) {
	var (
		rowid              int64
		recordID           string
		payload, embedding []byte
		updatedAt          int64
	)
	if err := rows.Scan(&rowid, &recordID, &payload, &embedding, &updatedAt); err != nil {
		return nil, 0, err
	}
	row, err := decodeRow(recordID, payload, embedding, updatedAt)
	return row, rowid, err
}

func decodeRow(recordID string, payload, embedding []byte, updatedAt int64) (*core.Row, error) {
	columns, err := storage.UnmarshalColumns(payload)
	if err != nil {
		return nil, err
	}
	row := &core.Row{
		RecordID:  recordID,
		Columns:   columns,
		UpdatedAt: time.UnixMicro(updatedAt).UTC(),
	}
	if len(embedding) > 0 {
		row.Vector, err = storage.UnmarshalVector(embedding)
		if err != nil {
			return nil, err
		}
	}
	return row, nil
}
