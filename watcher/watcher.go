package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/ledger"
)

// Processor ingests one file. *ingestion.Ingestor implements it.
type Processor interface {
	ProcessFile(ctx context.Context, path string) (*core.IngestOutcome, error)
}

// Filter is implemented by processors that can reject a file without reading
// it. The watcher consults it before waiting for a new file to settle.
type Filter interface {
	Accepts(path string) error
}

// Watcher dispatches the files of one folder to a Processor.
type Watcher struct {
	dir            string
	processor      Processor
	newSource      func() (EventSource, error)
	settleInterval time.Duration
	settleTimeout  time.Duration
	state          atomic.Int32
	logger         *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithEventSource replaces the fsnotify event source.
// newSource is called once per Run.
func WithEventSource(newSource func() (EventSource, error)) Option {
	return func(w *Watcher) {
		if newSource != nil {
			w.newSource = newSource
		}
	}
}

// WithSettle waits for a new file's size to stay the same for interval
// before ingesting it, giving up after timeout. A zero interval disables
// the wait.
func WithSettle(interval, timeout time.Duration) Option {
	return func(w *Watcher) {
		w.settleInterval = interval
		w.settleTimeout = timeout
	}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, processor Processor, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, ErrFolderRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}

	w := &Watcher{
		dir:       dir,
		processor: processor,
		newSource: func() (EventSource, error) {
			return NewFSNotifySource()
		},
		settleInterval: 200 * time.Millisecond,
		settleTimeout:  30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher", "folder", dir)

	return w, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Dir returns the watched folder.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes the folder's backlog and then new files until ctx is
// cancelled. It returns nil on cancellation. A ledger failure, or a failure
// of the event source, stops the watcher and is returned.
//
// Cancellation is observed between files; a file already being ingested
// is always finished.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(Idle), int32(ScanningBacklog)) {
		return ErrAlreadyRunning
	}
	defer w.state.Store(int32(Idle))

	source, err := w.newSource()
	if err != nil {
		return err
	}
	defer func() {
		w.state.Store(int32(ShuttingDown))
		if err := source.Close(); err != nil {
			w.logger.Warn("failed to close event source", "err", err)
		}
		w.logger.Info("watcher stopped")
	}()

	// Subscribe first so that files created during the scan produce events
	if err := source.Add(w.dir); err != nil {
		return err
	}

	if err := w.scanBacklog(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	w.state.Store(int32(Watching))
	w.logger.Info("watching for new files")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-source.Events():
			if !ok {
				return fmt.Errorf("%w: events channel closed", ErrEventSource)
			}
			if event.IsDir {
				w.logger.Debug("ignoring directory", "path", event.Path)
				continue
			}
			if !w.accepts(event.Path) {
				continue
			}
			if !w.settle(ctx, event.Path) {
				continue
			}
			if err := w.dispatch(ctx, event.Path); err != nil {
				return err
			}
		case err, ok := <-source.Errors():
			if !ok {
				return fmt.Errorf("%w: errors channel closed", ErrEventSource)
			}
			w.logger.Warn("event source error", "err", err)
		}
	}
}

func (w *Watcher) scanBacklog(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	w.logger.Info("scanning backlog", "entries", len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := w.dispatch(ctx, filepath.Join(w.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// dispatch hands path to the processor. Only ledger failures are returned.
func (w *Watcher) dispatch(ctx context.Context, path string) error {
	outcome, err := w.processor.ProcessFile(ctx, path)
	switch {
	case err == nil:
		w.logger.Info("processed file",
			"file", outcome.File,
			"table", outcome.Table,
			"rows", outcome.RowsTotal,
			"failed", outcome.RowsFailed)
		return nil
	case errors.Is(err, ingestion.ErrNotRouted), errors.Is(err, ingestion.ErrAlreadyProcessed):
		w.logger.Debug("skipping file", "path", path, "reason", err)
		return nil
	case errors.Is(err, ledger.ErrLedgerIO):
		w.logger.Error("ledger failure, stopping", "path", path, "err", err)
		return err
	default:
		w.logger.Error("failed to process file", "path", path, "err", err)
		return nil
	}
}

// accepts asks the processor's Filter, if any, whether path is worth
// settling. Any rejection is left for ProcessFile to report.
func (w *Watcher) accepts(path string) bool {
	filter, ok := w.processor.(Filter)
	if !ok {
		return true
	}
	if err := filter.Accepts(path); err != nil {
		w.logger.Debug("skipping file", "path", path, "reason", err)
		return false
	}
	return true
}

// settle waits until path stops growing. It returns false if the file
// vanished or ctx was cancelled.
func (w *Watcher) settle(ctx context.Context, path string) bool {
	if w.settleInterval <= 0 {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("file vanished before ingestion", "path", path)
		return false
	}
	size := info.Size()
	deadline := time.Now().Add(w.settleTimeout)

	ticker := time.NewTicker(w.settleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			w.logger.Debug("file vanished before ingestion", "path", path)
			return false
		}
		if info.Size() == size {
			return true
		}
		size = info.Size()
		if time.Now().After(deadline) {
			w.logger.Warn("file still changing, ingesting anyway", "path", path, "size", size)
			return true
		}
	}
}
