package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/storage"
)

// BatchProcessor recomputes embeddings for batches of rows of one route.
type BatchProcessor struct {
	rows           storage.RowRepository
	embedder       ai.Embedder
	route          core.Route
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(rows storage.RowRepository, embedder ai.Embedder, route core.Route, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		rows:           rows,
		embedder:       embedder,
		route:          route,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds a batch of rows from the route's text fields and writes
// them back to the route's table.
func (bp *BatchProcessor) Process(ctx context.Context, rows []*core.Row) error {
	if len(rows) == 0 {
		return nil
	}

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.EmbeddingText(bp.route.TextFields)
	}

	var embeddings [][]float32
	err := ingestion.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(rows) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(rows), len(embeddings))
	}
	for i, embedding := range embeddings {
		if len(embedding) == 0 {
			return fmt.Errorf("%w: empty embedding for recordid %s", ErrEmbeddingMismatch, rows[i].RecordID)
		}
	}

	for i, row := range rows {
		row.Vector = embeddings[i]
		if err := bp.rows.UpsertRow(ctx, bp.route.Table, row); err != nil {
			return fmt.Errorf("failed to update row %s: %w", row.RecordID, err)
		}
	}

	return nil
}
