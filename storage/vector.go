package storage

import (
	"math"
	"slices"

	"github.com/poiesic/auditrag/core"
)

// CosineSimilarity returns the cosine similarity of a and b.
// ok is false when the vectors are empty or differ in dimension.
// A zero-norm vector scores 0.
func CosineSimilarity(a, b []float32) (score float32, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, true
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}

// Ranker accumulates similarity results in natural store order and
// yields the top entries by descending score.
type Ranker struct {
	table   string
	query   []float32
	results []*core.SimilarityResult
}

// NewRanker creates a Ranker scoring rows of table against query.
func NewRanker(table string, query []float32) *Ranker {
	return &Ranker{table: table, query: query}
}

// Add scores row. Rows without a comparable embedding are ignored.
func (r *Ranker) Add(row *core.Row) {
	score, ok := CosineSimilarity(r.query, row.Vector)
	if !ok {
		return
	}
	r.results = append(r.results, &core.SimilarityResult{
		Table: r.table,
		Row:   row,
		Score: score,
	})
}

// Top returns up to limit results. Equal scores keep insertion order.
func (r *Ranker) Top(limit int) []*core.SimilarityResult {
	slices.SortStableFunc(r.results, func(a, b *core.SimilarityResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if limit >= 0 && len(r.results) > limit {
		return r.results[:limit]
	}
	return r.results
}
