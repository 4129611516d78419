package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
	_ "modernc.org/sqlite"
)

const outcomesSchema = `
CREATE TABLE IF NOT EXISTS ingest_outcomes (
	file        TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	table_name  TEXT NOT NULL,
	rows_total  INTEGER NOT NULL,
	rows_failed INTEGER NOT NULL,
	marked      INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
)`

// Row tables are created on first write as rows_<lowercased table>_<table id>.
// SQLite identifiers are case-insensitive, so the id keeps tables that differ
// only in case apart.
const rowTableSchema = `
CREATE TABLE IF NOT EXISTS %s (
	recordid   TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	embedding  BLOB,
	updated_at INTEGER NOT NULL
)`

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// DB wraps a SQLite database connection and implements storage.Store.
type DB struct {
	conn     *sql.DB
	path     string
	tables   sync.Map // table name -> struct{} for row tables known to exist
	rows     *RowRepository
	outcomes *OutcomeRepository
	logger   *slog.Logger
}

var _ storage.Store = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newDB(conn, path)
}

// OpenInMemory creates an in-memory SQLite database (for testing).
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)

	return newDB(conn, ":memory:")
}

func newDB(conn *sql.DB, path string) (*DB, error) {
	if _, err := conn.Exec(outcomesSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db := &DB{
		conn:   conn,
		path:   path,
		logger: slog.Default().With("component", "sqlite"),
	}
	db.rows = &RowRepository{db: db}
	db.outcomes = &OutcomeRepository{db: db}
	return db, nil
}

// Rows returns the row repository.
func (db *DB) Rows() storage.RowRepository {
	return db.rows
}

// Outcomes returns the outcome repository.
func (db *DB) Outcomes() storage.OutcomeRepository {
	return db.outcomes
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// tableName maps a target table to its SQL table, validating the name.
func tableName(table string) (string, error) {
	if !identifierPattern.MatchString(table) {
		return "", fmt.Errorf("%w: %q is not a valid SQL identifier", storage.ErrInvalidTable, table)
	}
	return fmt.Sprintf("rows_%s_%016x", strings.ToLower(table), uint64(core.IDFromContent(table))), nil
}

// ensureTable creates the SQL table for table if it has not been seen yet.
func (db *DB) ensureTable(ctx context.Context, table string) (string, error) {
	name, err := tableName(table)
	if err != nil {
		return "", err
	}
	if _, ok := db.tables.Load(name); ok {
		return name, nil
	}
	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(rowTableSchema, name)); err != nil {
		return "", err
	}
	db.tables.Store(name, struct{}{})
	db.logger.Debug("created row table", "table", table, "sql_table", name)
	return name, nil
}

// existingTable resolves the SQL table for reads. ok is false when the
// table has never been written.
func (db *DB) existingTable(ctx context.Context, table string) (name string, ok bool, err error) {
	name, err = tableName(table)
	if err != nil {
		return "", false, err
	}
	if _, known := db.tables.Load(name); known {
		return name, true, nil
	}
	var found string
	err = db.conn.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return name, false, nil
	}
	if err != nil {
		return "", false, err
	}
	db.tables.Store(name, struct{}{})
	return name, true, nil
}
