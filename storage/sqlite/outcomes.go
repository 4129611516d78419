package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
)

// OutcomeRepository implements storage.OutcomeRepository on SQLite.
type OutcomeRepository struct {
	db *DB
}

var _ storage.OutcomeRepository = (*OutcomeRepository)(nil)

// SaveOutcome stores the outcome for a file, replacing the previous one.
func (r *OutcomeRepository) SaveOutcome(ctx context.Context, o *core.IngestOutcome) error {
	if o.FinishedAt.IsZero() {
		o.FinishedAt = time.Now().UTC()
	}
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO ingest_outcomes
			(file, run_id, table_name, rows_total, rows_failed, marked, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			run_id = excluded.run_id,
			table_name = excluded.table_name,
			rows_total = excluded.rows_total,
			rows_failed = excluded.rows_failed,
			marked = excluded.marked,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, o.File, o.RunID, o.Table, o.RowsTotal, o.RowsFailed, o.Marked,
		o.StartedAt.UnixMicro(), o.FinishedAt.UnixMicro())
	return err
}

// LoadOutcome retrieves the outcome for a file.
// Returns nil, nil if no outcome exists.
func (r *OutcomeRepository) LoadOutcome(ctx context.Context, file string) (*core.IngestOutcome, error) {
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT file, run_id, table_name, rows_total, rows_failed, marked, started_at, finished_at
		FROM ingest_outcomes WHERE file = ?
	`, file)
	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// ListOutcomes returns all outcomes ordered by file name.
func (r *OutcomeRepository) ListOutcomes(ctx context.Context) ([]*core.IngestOutcome, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT file, run_id, table_name, rows_total, rows_failed, marked, started_at, finished_at
		FROM ingest_outcomes ORDER BY file
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var outcomes []*core.IngestOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(s scanner) (*core.IngestOutcome, error) {
	var (
		o                   core.IngestOutcome
		startedAt, finished int64
	)
	err := s.Scan(&o.File, &o.RunID, &o.Table, &o.RowsTotal, &o.RowsFailed, &o.Marked, &startedAt, &finished)
	if err != nil {
		return nil, err
	}
	o.StartedAt = time.UnixMicro(startedAt).UTC()
	o.FinishedAt = time.UnixMicro(finished).UTC()
	return &o, nil
}
