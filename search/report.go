package search

import (
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/auditrag/core"
)

// TableResult holds the hits of one table, best first.
type TableResult struct {
	Table string
	Hits  []*core.SimilarityResult
}

// Report is the result of one retrieval.
type Report struct {
	Query string

	// Tables lists the tables that were searched successfully, in
	// configuration order. A table with no rows has an empty Hits slice.
	Tables []TableResult

	// Failed lists the tables whose search failed, in configuration order.
	Failed []string
}

// Table returns the result for table, if it was searched successfully.
func (r *Report) Table(table string) (TableResult, bool) {
	for _, t := range r.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return TableResult{}, false
}

// HitCount returns the number of hits across all tables.
func (r *Report) HitCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Hits)
	}
	return n
}

// String renders the report as text. Embeddings are never included.
func (r *Report) String() string {
	var sb strings.Builder
	_, _ = r.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the text rendering of the report to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	fmt.Fprintf(cw, "Audit Query: %s\n\n", r.Query)
	for _, t := range r.Tables {
		fmt.Fprintf(cw, "Table: %s\n", t.Table)
		for _, hit := range t.Hits {
			fmt.Fprintf(cw, " - Similarity: %.4f, Data: %s\n", hit.Score, formatColumns(hit.Row))
		}
	}
	return cw.n, cw.err
}

func formatColumns(row *core.Row) string {
	if row == nil {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range row.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		sb.WriteString(": ")
		sb.WriteString(c.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}

// countingWriter stops writing after the first error.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
