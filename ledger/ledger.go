package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DefaultPath is the ledger file used when none is configured.
const DefaultPath = ".loaded_files"

// FileLedger is a durable set of processed file identifiers.
// It is safe for concurrent use.
type FileLedger struct {
	mu      sync.RWMutex
	path    string
	entries map[string]struct{}
	logger  *slog.Logger

	// unterminated is set when the file does not end with a newline.
	unterminated bool
}

// Option configures a FileLedger.
type Option func(*FileLedger)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLedger) {
		l.logger = logger
	}
}

// Open loads the ledger at path. A missing file is an empty ledger.
func Open(path string, opts ...Option) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		entries: make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "ledger", "path", path)

	if err := l.load(); err != nil {
		return nil, err
	}
	l.logger.Debug("ledger loaded", "entries", len(l.entries))
	return l, nil
}

func (l *FileLedger) load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrLedgerIO, l.path, err)
	}

	if len(data) > 0 && data[len(data)-1] != '\n' {
		l.unterminated = true
		l.logger.Debug("ledger has no final newline, terminating it on next write")
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			l.entries[line] = struct{}{}
		}
	}
	return nil
}

// Contains reports whether id has been marked processed.
func (l *FileLedger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok
}

// MarkProcessed durably records id. Marking an id already present is a no-op.
func (l *FileLedger) MarkProcessed(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; ok {
		return nil
	}
	if err := l.appendLine(id); err != nil {
		return err
	}
	l.entries[id] = struct{}{}
	l.logger.Debug("marked processed", "id", id)
	return nil
}

func (l *FileLedger) appendLine(id string) error {
	_, statErr := os.Stat(l.path)
	created := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrLedgerIO, l.path, err)
	}
	line := id + "\n"
	if l.unterminated {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: append %s: %w", ErrLedgerIO, l.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrLedgerIO, l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrLedgerIO, l.path, err)
	}
	l.unterminated = false
	if created {
		syncDir(filepath.Dir(l.path))
	}
	return nil
}

// syncDir makes a newly created ledger file's directory entry durable.
// Not every platform supports syncing a directory, so failure is ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Entries returns all identifiers in sorted order.
func (l *FileLedger) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.entries))
	for id := range l.entries {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of recorded identifiers.
func (l *FileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string {
	return l.path
}
