package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/auditrag/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(dirPath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return nil, err
		}
		info, err := os.Stat(dirPath)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dirPath)
		}
		opts = badger.DefaultOptions(dirPath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		b.logger.Error("failed to close badger", "err", err)
		return err
	}
	return nil
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	if err := fn(tx); err != nil {
		if isWrite {
			b.logger.Debug("write transaction discarded", "err", err)
		}
		return err
	}
	return nil
}

// iteratePrefix walks every value under prefix in key order.
// Values passed to fn are only valid for the duration of the call.
func (b *Backend) iteratePrefix(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	return b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			err := item.Value(func(val []byte) error {
				return fn(item.Key(), val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// Store implements storage.Store on a single Backend.
type Store struct {
	backend  *Backend
	rows     *RowRepository
	outcomes *OutcomeRepository
}

var _ storage.Store = (*Store)(nil)

// OpenStore opens a badger-backed store. An empty dirPath with inMemory
// set gives a throwaway store for tests.
func OpenStore(dirPath string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(dirPath, inMemory)
	if err != nil {
		return nil, err
	}
	return NewStore(backend), nil
}

// NewStore wraps an open backend.
func NewStore(backend *Backend) *Store {
	return &Store{
		backend:  backend,
		rows:     NewRowRepository(backend),
		outcomes: NewOutcomeRepository(backend),
	}
}

// Rows returns the row repository.
func (s *Store) Rows() storage.RowRepository {
	return s.rows
}

// Outcomes returns the outcome repository.
func (s *Store) Outcomes() storage.OutcomeRepository {
	return s.outcomes
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
