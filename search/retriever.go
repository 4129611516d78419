package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/metrics"
	"github.com/poiesic/auditrag/storage"
)

// DefaultLimit is the number of rows returned per table.
const DefaultLimit = 5

// Retriever runs similarity searches across a fixed set of tables.
type Retriever struct {
	rows     storage.RowRepository
	embedder ai.Embedder
	tables   []string
	limit    int
	pool     *ants.Pool
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithLimit sets the maximum number of rows returned per table.
// Default is DefaultLimit.
func WithLimit(limit int) Option {
	return func(r *Retriever) error {
		if limit <= 0 {
			return ErrInvalidLimit
		}
		r.limit = limit
		return nil
	}
}

// WithPoolSize sets the number of tables searched concurrently.
func WithPoolSize(size int) Option {
	return func(r *Retriever) error {
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithMetrics records retrieval metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) error {
		r.metrics = m
		return nil
	}
}

// NewRetriever creates a retriever over tables. Duplicate table names are
// searched once, at their first position.
// Call Release when done to free the worker pool.
func NewRetriever(rows storage.RowRepository, embedder ai.Embedder, tables []string, opts ...Option) (*Retriever, error) {
	if rows == nil {
		return nil, ErrRowRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	unique := make([]string, 0, len(tables))
	seen := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		if _, ok := seen[table]; ok || table == "" {
			continue
		}
		seen[table] = struct{}{}
		unique = append(unique, table)
	}
	if len(unique) == 0 {
		return nil, ErrNoTables
	}

	r := &Retriever{
		rows:     rows,
		embedder: embedder,
		tables:   unique,
		limit:    DefaultLimit,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			r.Release()
			return nil, err
		}
	}

	if r.pool == nil {
		pool, err := ants.NewPool(max(1, min(len(unique), runtime.NumCPU())))
		if err != nil {
			return nil, err
		}
		r.pool = pool
	}
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// Tables returns the searched tables in report order.
func (r *Retriever) Tables() []string {
	return append([]string(nil), r.tables...)
}

// Limit returns the maximum number of rows per table.
func (r *Retriever) Limit() int {
	return r.limit
}

// Retrieve embeds query and returns the best matching rows of every table.
// Failing to embed the query fails the call. A failing table search only
// removes that table from the report.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Report, error) {
	return r.RetrieveWithMonitor(ctx, query, nil)
}

// RetrieveWithMonitor is Retrieve with a monitor receiving callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, monitor RetrievalMonitor) (*Report, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	monitor.Start(query)

	vector, err := r.embedder.EmbedText(ctx, query)
	if err == nil && len(vector) == 0 {
		err = fmt.Errorf("%w: empty embedding", ai.ErrEmbeddingProvider)
	}
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		r.metrics.RecordRetrieval(metrics.ResultFailed, nil)
		return nil, err
	}
	monitor.AfterQueryEmbedding(vector)

	type slot struct {
		hits []*core.SimilarityResult
		err  error
	}
	slots := make([]slot, len(r.tables))

	var wg sync.WaitGroup
	for i, table := range r.tables {
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			slots[i].hits, slots[i].err = r.rows.FindSimilar(ctx, table, vector, r.limit)
		})
		if err != nil {
			wg.Done()
			slots[i].err = err
		}
	}
	wg.Wait()

	report := &Report{Query: query, Tables: make([]TableResult, 0, len(r.tables))}
	for i, table := range r.tables {
		if err := slots[i].err; err != nil {
			r.logger.Error("table search failed", "table", table, "err", err)
			report.Failed = append(report.Failed, table)
			monitor.TableFailed(table, err)
			continue
		}
		hits := slots[i].hits
		if hits == nil {
			hits = []*core.SimilarityResult{}
		}
		report.Tables = append(report.Tables, TableResult{Table: table, Hits: hits})
		monitor.TableSearched(table, hits)
	}

	result := metrics.ResultComplete
	switch {
	case len(report.Failed) == len(r.tables):
		result = metrics.ResultFailed
	case len(report.Failed) > 0:
		result = metrics.ResultPartial
	}
	r.metrics.RecordRetrieval(result, report.Failed)
	r.logger.Debug("retrieval finished", "query", query, "hits", report.HitCount(), "failed", len(report.Failed))

	monitor.Finish(report)
	return report, nil
}

// Release frees the worker pool. The retriever must not be used afterwards.
func (r *Retriever) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}
