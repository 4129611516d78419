package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/metrics"
	"github.com/poiesic/auditrag/storage"
	"github.com/poiesic/auditrag/tabular"
)

// Ledger is the set of processed file identifiers consulted before ingestion.
type Ledger interface {
	Contains(id string) bool
	MarkProcessed(id string) error
}

// Ingestor loads routed files into a row repository.
// It is safe for concurrent use; files are ingested one at a time.
type Ingestor struct {
	routes         *core.RoutingTable
	rows           storage.RowRepository
	outcomes       storage.OutcomeRepository
	embedder       ai.Embedder
	ledger         Ledger
	policy         MarkPolicy
	maxAttempts    int
	retryDelay     time.Duration
	metrics        *metrics.Metrics
	progress       io.Writer
	reportInterval int
	mu             sync.Mutex
	logger         *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithOutcomeRepository records the outcome of every ingestion.
func WithOutcomeRepository(outcomes storage.OutcomeRepository) Option {
	return func(i *Ingestor) error {
		i.outcomes = outcomes
		return nil
	}
}

// WithMarkPolicy sets when files are marked in the ledger.
// Default is MarkAlways.
func WithMarkPolicy(policy MarkPolicy) Option {
	return func(i *Ingestor) error {
		if policy != MarkAlways && policy != MarkOnFullSuccess {
			return fmt.Errorf("%w: %d", ErrInvalidMarkPolicy, int(policy))
		}
		i.policy = policy
		return nil
	}
}

// WithRetry retries a failed row embedding up to maxAttempts times in total.
// Default is a single attempt.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(i *Ingestor) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		i.maxAttempts = maxAttempts
		i.retryDelay = baseDelay
		return nil
	}
}

// WithMetrics records ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) error {
		i.metrics = m
		return nil
	}
}

// WithProgress writes a per-file progress line to w every reportInterval rows.
func WithProgress(w io.Writer, reportInterval int) Option {
	return func(i *Ingestor) error {
		i.progress = w
		i.reportInterval = reportInterval
		return nil
	}
}

// NewIngestor creates a new file ingestor.
func NewIngestor(
	routes *core.RoutingTable,
	rows storage.RowRepository,
	embedder ai.Embedder,
	ledger Ledger,
	opts ...Option,
) (*Ingestor, error) {
	if routes == nil {
		return nil, ErrRoutingTableRequired
	}
	if rows == nil {
		return nil, ErrRowRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRequired
	}

	i := &Ingestor{
		routes:         routes,
		rows:           rows,
		embedder:       embedder,
		ledger:         ledger,
		policy:         MarkAlways,
		maxAttempts:    1,
		retryDelay:     time.Second,
		reportInterval: 100,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "ingestor")

	return i, nil
}

// Routes returns the routing table the ingestor dispatches with.
func (i *Ingestor) Routes() *core.RoutingTable {
	return i.routes
}

// Accepts reports whether ProcessFile would currently ingest path. It returns
// ErrNotRouted or ErrAlreadyProcessed when it would not.
func (i *Ingestor) Accepts(path string) error {
	name := filepath.Base(path)
	route, ok := i.routes.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRouted, name)
	}
	if i.ledger.Contains(route.FileName) {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, name)
	}
	return nil
}

// ProcessFile ingests the file at path if its base name is routed and not yet
// in the ledger. It returns ErrNotRouted or ErrAlreadyProcessed otherwise.
// The ledger check, ingestion and mark happen under one lock.
func (i *Ingestor) ProcessFile(ctx context.Context, path string) (*core.IngestOutcome, error) {
	name := filepath.Base(path)
	route, ok := i.routes.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRouted, name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.ledger.Contains(route.FileName) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, name)
	}
	return i.ingest(ctx, path, route)
}

// Ingest loads the file at path into route's table without consulting the
// ledger first, then marks it according to the mark policy. Rows already
// stored are overwritten, so ingesting the same file again is harmless.
func (i *Ingestor) Ingest(ctx context.Context, path string, route core.Route) (*core.IngestOutcome, error) {
	if err := core.ValidateRoute(&route); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	return i.ingest(ctx, path, route)
}

// ingest must be called with i.mu held.
func (i *Ingestor) ingest(ctx context.Context, path string, route core.Route) (*core.IngestOutcome, error) {
	ctx = context.WithoutCancel(ctx)

	outcome := &core.IngestOutcome{
		RunID:     uuid.NewString(),
		File:      route.FileName,
		Table:     route.Table,
		StartedAt: time.Now().UTC(),
	}
	logger := i.logger.With("run_id", outcome.RunID, "file", route.FileName, "table", route.Table)

	table, err := tabular.ReadFile(path)
	if err != nil {
		logger.Error("failed to parse file", "path", path, "err", err)
		i.finish(ctx, logger, outcome, metrics.ResultFailed)
		return outcome, err
	}

	outcome.RowsTotal = len(table.Rows)
	logger.Info("starting file ingestion", "path", path, "rows", outcome.RowsTotal)

	var tracker *ProgressTracker
	if i.progress != nil {
		tracker = NewProgressTracker(i.progress, "Processing "+route.FileName, outcome.RowsTotal, i.reportInterval)
		tracker.Start()
	}

	for index, row := range table.Rows {
		if stage, err := i.ingestRow(ctx, route, row); err != nil {
			outcome.RowsFailed++
			i.metrics.RecordRowFailure(route.Table, stage)
			logger.Error("failed to ingest row", "row", index, "recordid", row.RecordID, "stage", stage, "err", err)
		} else {
			i.metrics.RecordRow(route.Table)
		}
		if tracker != nil {
			tracker.Increment(1)
		}
	}
	if tracker != nil {
		tracker.Finish()
	}

	if i.policy.shouldMark(outcome.RowsFailed) {
		if err := i.ledger.MarkProcessed(route.FileName); err != nil {
			logger.Error("failed to mark file processed", "err", err)
			i.finish(ctx, logger, outcome, resultFor(outcome))
			return outcome, err
		}
		outcome.Marked = true
	} else {
		logger.Warn("file not marked processed", "policy", i.policy.String(), "rows_failed", outcome.RowsFailed)
	}

	i.finish(ctx, logger, outcome, resultFor(outcome))
	return outcome, nil
}

// ingestRow embeds and upserts one row. On failure it returns the stage that failed.
func (i *Ingestor) ingestRow(ctx context.Context, route core.Route, row *core.Row) (string, error) {
	if err := core.ValidateRow(row); err != nil {
		return metrics.StageParse, err
	}

	text := row.EmbeddingText(route.TextFields)
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		v, err := i.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return fmt.Errorf("%w: empty embedding", ai.ErrEmbeddingProvider)
		}
		vector = v
		return nil
	}, i.maxAttempts, i.retryDelay)
	if err != nil {
		return metrics.StageEmbed, err
	}

	row.Vector = vector
	if err := i.rows.UpsertRow(ctx, route.Table, row); err != nil {
		return metrics.StageUpsert, err
	}
	return "", nil
}

func (i *Ingestor) finish(ctx context.Context, logger *slog.Logger, outcome *core.IngestOutcome, result string) {
	outcome.FinishedAt = time.Now().UTC()
	elapsed := outcome.FinishedAt.Sub(outcome.StartedAt)
	i.metrics.RecordFile(outcome.Table, result, elapsed)

	if i.outcomes != nil {
		if err := i.outcomes.SaveOutcome(ctx, outcome); err != nil {
			logger.Warn("failed to save ingestion outcome", "err", err)
		}
	}

	if result != metrics.ResultFailed || outcome.RowsTotal > 0 {
		logger.Info("file ingestion finished",
			"result", result,
			"rows", outcome.RowsTotal,
			"failed", outcome.RowsFailed,
			"marked", outcome.Marked,
			"elapsed", elapsed.Round(time.Millisecond))
	}
}

func resultFor(outcome *core.IngestOutcome) string {
	switch {
	case outcome.RowsFailed == 0:
		return metrics.ResultComplete
	case outcome.RowsFailed == outcome.RowsTotal:
		return metrics.ResultFailed
	default:
		return metrics.ResultPartial
	}
}
