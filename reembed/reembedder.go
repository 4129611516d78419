// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of rows to embed in each request
	BatchSize int

	// ReportInterval is how often to report progress (number of rows)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding request
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of all rows of one routed table.
type Reembedder struct {
	rows      storage.RowRepository
	route     core.Route
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RowIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder for route's table.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(rows storage.RowRepository, embedder ai.Embedder, route core.Route, config *Config, progress io.Writer) (*Reembedder, error) {
	if rows == nil {
		return nil, ErrRowRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if err := core.ValidateRoute(&route); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		return nil, ingestion.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		rows:      rows,
		route:     route,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(rows, embedder, route, config.MaxRetries, config.RetryDelay),
		iterator:  NewRowIterator(rows, route.Table, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder", "table", route.Table),
	}, nil
}

// Run reembeds every row of the table and returns the number of rows written.
// Progress is reported to the configured writer. A failed batch stops the run;
// rows of earlier batches keep their new embeddings.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.rows.CountRows(ctx, r.route.Table)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No rows found in table %s (0 rows)\n", r.route.Table)
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d rows in %s (batch size: %d)\n",
		total, r.route.Table, r.iterator.batchSize)

	tracker := ingestion.NewProgressTracker(r.progress, "Reembedding "+r.route.Table, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(rows []*core.Row) error {
		if err := r.processor.Process(ctx, rows); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(rows)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "processed", processed, "total", total, "err", err)
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d rows in %v (%.1f rows/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))
	r.logger.Info("reembedding complete", "rows", processed, "elapsed", elapsed)

	return processed, nil
}
