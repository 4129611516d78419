// Package metrics defines the Prometheus metrics exported by auditrag.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auditrag"

// Row failure stages.
const (
	StageParse  = "parse"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// File ingestion results.
const (
	ResultComplete = "complete"
	ResultPartial  = "partial"
	ResultFailed   = "failed"
)

// Metrics holds Prometheus metrics for ingestion and retrieval.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FilesIngestedTotal          *prometheus.CounterVec
	RowsIngestedTotal           *prometheus.CounterVec
	RowsFailedTotal             *prometheus.CounterVec
	FileIngestDuration          *prometheus.HistogramVec
	RetrievalsTotal             *prometheus.CounterVec
	RetrievalTableFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
//
// Metrics:
//   - auditrag_files_ingested_total{table,result} - files ingested by result
//   - auditrag_rows_ingested_total{table} - rows embedded and written
//   - auditrag_rows_failed_total{table,stage} - rows skipped, by failing stage
//   - auditrag_file_ingest_duration_seconds{table} - wall time per file
//   - auditrag_retrievals_total{result} - retrieval calls
//   - auditrag_retrieval_table_failures_total{table} - per-table search failures
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FilesIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_ingested_total",
				Help:      "Total number of files ingested",
			},
			[]string{"table", "result"},
		),
		RowsIngestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_ingested_total",
				Help:      "Total number of rows embedded and upserted",
			},
			[]string{"table"},
		),
		RowsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_failed_total",
				Help:      "Total number of rows skipped because of a failure",
			},
			[]string{"table", "stage"},
		),
		FileIngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_ingest_duration_seconds",
				Help:      "Duration of file ingestion in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"table"},
		),
		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "Total number of retrieval calls",
			},
			[]string{"result"},
		),
		RetrievalTableFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_table_failures_total",
				Help:      "Total number of per-table similarity search failures",
			},
			[]string{"table"},
		),
	}
}

// RecordFile records the result of one file ingestion.
func (m *Metrics) RecordFile(table, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FilesIngestedTotal.WithLabelValues(table, result).Inc()
	m.FileIngestDuration.WithLabelValues(table).Observe(elapsed.Seconds())
}

// RecordRow records one successfully ingested row.
func (m *Metrics) RecordRow(table string) {
	if m == nil {
		return
	}
	m.RowsIngestedTotal.WithLabelValues(table).Inc()
}

// RecordRowFailure records a row skipped at stage.
func (m *Metrics) RecordRowFailure(table, stage string) {
	if m == nil {
		return
	}
	m.RowsFailedTotal.WithLabelValues(table, stage).Inc()
}

// RecordRetrieval records a retrieval call and its failed tables.
func (m *Metrics) RecordRetrieval(result string, failedTables []string) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(result).Inc()
	for _, table := range failedTables {
		m.RetrievalTableFailuresTotal.WithLabelValues(table).Inc()
	}
}
