package ingestion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/auditrag/ai/mock"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ledger"
	"github.com/poiesic/auditrag/metrics"
	"github.com/poiesic/auditrag/storage"
	"github.com/poiesic/auditrag/storage/badger"
	"github.com/poiesic/auditrag/tabular"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vendorsCSV = `recordid,vendor_name,memo,amount
1,Acme Corp,office supplies,120.50
2,Globex,consulting retainer,9000.00
3,Initech,printer repair,310.00
`

type ingestFixture struct {
	dir      string
	store    storage.Store
	ledger   *ledger.FileLedger
	embedder *mock.MockEmbedder
	routes   *core.RoutingTable
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	dir := t.TempDir()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l, err := ledger.Open(filepath.Join(dir, ledger.DefaultPath))
	require.NoError(t, err)

	routes, err := core.NewRoutingTable(
		core.Route{FileName: "vendors.csv", Table: "vendor_payments", TextFields: []string{"vendor_name", "memo"}},
		core.Route{FileName: "journal.tsv", Table: "journal_entries", TextFields: []string{"description"}},
	)
	require.NoError(t, err)

	return &ingestFixture{
		dir:      dir,
		store:    store,
		ledger:   l,
		embedder: mock.NewMockEmbedder(),
		routes:   routes,
	}
}

func (f *ingestFixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *ingestFixture) ingestor(t *testing.T, opts ...Option) *Ingestor {
	t.Helper()
	ing, err := NewIngestor(f.routes, f.store.Rows(), f.embedder, f.ledger, opts...)
	require.NoError(t, err)
	return ing
}

// failingLedger reports nothing as processed and refuses every mark.
type failingLedger struct{}

func (failingLedger) Contains(string) bool { return false }

func (failingLedger) MarkProcessed(id string) error {
	return errors.Join(ledger.ErrLedgerIO, errors.New("disk full"))
}

// failingRows rejects upserts for one record id.
type failingRows struct {
	storage.RowRepository
	recordID string
}

func (r *failingRows) UpsertRow(ctx context.Context, table string, row *core.Row) error {
	if row.RecordID == r.recordID {
		return storage.ErrStoreWrite
	}
	return r.RowRepository.UpsertRow(ctx, table, row)
}

func TestNewIngestor_Validation(t *testing.T) {
	f := newIngestFixture(t)
	rows := f.store.Rows()

	_, err := NewIngestor(nil, rows, f.embedder, f.ledger)
	assert.ErrorIs(t, err, ErrRoutingTableRequired)

	_, err = NewIngestor(f.routes, nil, f.embedder, f.ledger)
	assert.ErrorIs(t, err, ErrRowRepositoryRequired)

	_, err = NewIngestor(f.routes, rows, nil, f.ledger)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewIngestor(f.routes, rows, f.embedder, nil)
	assert.ErrorIs(t, err, ErrLedgerRequired)

	_, err = NewIngestor(f.routes, rows, f.embedder, f.ledger, WithRetry(0, 0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewIngestor(f.routes, rows, f.embedder, f.ledger, WithMarkPolicy(MarkPolicy(7)))
	assert.ErrorIs(t, err, ErrInvalidMarkPolicy)
}

func TestIngestor_ProcessFile(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	ctx := context.Background()
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "vendors.csv", outcome.File)
	assert.Equal(t, "vendor_payments", outcome.Table)
	assert.Equal(t, 3, outcome.RowsTotal)
	assert.Equal(t, 0, outcome.RowsFailed)
	assert.True(t, outcome.Marked)
	assert.NotEmpty(t, outcome.RunID)
	assert.False(t, outcome.FinishedAt.Before(outcome.StartedAt))

	count, err := f.store.Rows().CountRows(ctx, "vendor_payments")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"vendors.csv"}, f.ledger.Entries())

	row, err := f.store.Rows().GetRow(ctx, "vendor_payments", "2")
	require.NoError(t, err)
	amount, _ := row.Get("amount")
	assert.Equal(t, "9000.00", amount)
	assert.Len(t, row.Vector, mock.DefaultDimension)

	t.Run("already processed", func(t *testing.T) {
		calls := f.embedder.CallCount()
		_, err := ing.ProcessFile(ctx, path)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.Equal(t, calls, f.embedder.CallCount())
	})

	t.Run("not routed", func(t *testing.T) {
		other := f.writeFile(t, "unknown.csv", vendorsCSV)
		_, err := ing.ProcessFile(ctx, other)
		assert.ErrorIs(t, err, ErrNotRouted)
	})
}

func TestIngestor_Accepts(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)

	assert.NoError(t, ing.Accepts(filepath.Join(f.dir, "vendors.csv")))
	assert.ErrorIs(t, ing.Accepts(filepath.Join(f.dir, "unknown.csv")), ErrNotRouted)

	require.NoError(t, f.ledger.MarkProcessed("vendors.csv"))
	assert.ErrorIs(t, ing.Accepts(filepath.Join(f.dir, "vendors.csv")), ErrAlreadyProcessed)
	assert.Zero(t, f.embedder.CallCount())
}

func TestIngestor_EmbeddingTextOrder(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	_, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Acme Corp office supplies",
		"Globex consulting retainer",
		"Initech printer repair",
	}, f.embedder.Texts())
}

func TestIngestor_ShortRowIngested(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	ctx := context.Background()
	path := f.writeFile(t, "vendors.csv", "recordid,vendor_name,memo\n1,Acme,supplies\n2,Globex\n3,Initech,repair\n")

	outcome, err := ing.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.RowsTotal)
	assert.Equal(t, 0, outcome.RowsFailed)
	assert.True(t, outcome.Marked)
	assert.Equal(t, []string{"Acme supplies", "Globex ", "Initech repair"}, f.embedder.Texts())

	row, err := f.store.Rows().GetRow(ctx, "vendor_payments", "2")
	require.NoError(t, err)
	memo, ok := row.Get("memo")
	assert.True(t, ok)
	assert.Empty(t, memo)
}

func TestIngestor_ReingestIsIdempotent(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	ctx := context.Background()
	path := f.writeFile(t, "vendors.csv", vendorsCSV)
	route, ok := f.routes.Lookup("vendors.csv")
	require.True(t, ok)

	_, err := ing.Ingest(ctx, path, route)
	require.NoError(t, err)

	// Change one row and ingest again; the record is overwritten, not duplicated
	updated := strings.Replace(vendorsCSV, "Globex,consulting retainer", "Globex,audit retainer", 1)
	f.writeFile(t, "vendors.csv", updated)
	_, err = ing.Ingest(ctx, path, route)
	require.NoError(t, err)

	count, err := f.store.Rows().CountRows(ctx, "vendor_payments")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	row, err := f.store.Rows().GetRow(ctx, "vendor_payments", "2")
	require.NoError(t, err)
	memo, _ := row.Get("memo")
	assert.Equal(t, "audit retainer", memo)
	assert.Equal(t, []string{"vendors.csv"}, f.ledger.Entries())
}

func TestIngestor_PartialFailure(t *testing.T) {
	content := vendorsCSV + "4,Poison Ltd,poison row,1.00\n"

	t.Run("mark always", func(t *testing.T) {
		f := newIngestFixture(t)
		f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "poison") {
				return nil, errors.New("provider unavailable")
			}
			return mock.GenerateDeterministicVector(text, 8), nil
		}
		reg := prometheus.NewRegistry()
		m := metrics.NewMetrics(reg)
		ing := f.ingestor(t, WithMetrics(m))
		path := f.writeFile(t, "vendors.csv", content)

		outcome, err := ing.ProcessFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 4, outcome.RowsTotal)
		assert.Equal(t, 1, outcome.RowsFailed)
		assert.Equal(t, 3, outcome.RowsSucceeded())
		assert.True(t, outcome.Marked)
		assert.True(t, f.ledger.Contains("vendors.csv"))

		count, err := f.store.Rows().CountRows(context.Background(), "vendor_payments")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		_, err = f.store.Rows().GetRow(context.Background(), "vendor_payments", "4")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsIngestedTotal.WithLabelValues("vendor_payments")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsFailedTotal.WithLabelValues("vendor_payments", metrics.StageEmbed)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesIngestedTotal.WithLabelValues("vendor_payments", metrics.ResultPartial)))
	})

	t.Run("mark on full success", func(t *testing.T) {
		f := newIngestFixture(t)
		f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "poison") {
				return nil, errors.New("provider unavailable")
			}
			return mock.GenerateDeterministicVector(text, 8), nil
		}
		ing := f.ingestor(t, WithMarkPolicy(MarkOnFullSuccess))
		path := f.writeFile(t, "vendors.csv", content)

		outcome, err := ing.ProcessFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.RowsFailed)
		assert.False(t, outcome.Marked)
		assert.False(t, f.ledger.Contains("vendors.csv"))

		// The file is picked up again on the next trigger
		_, err = ing.ProcessFile(context.Background(), path)
		require.NoError(t, err)
	})
}

func TestIngestor_EmptyEmbeddingFailsRow(t *testing.T) {
	f := newIngestFixture(t)
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if strings.HasPrefix(text, "Globex") {
			return []float32{}, nil
		}
		return mock.GenerateDeterministicVector(text, 8), nil
	}
	ing := f.ingestor(t)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.RowsFailed)
}

func TestIngestor_RetryRecoversRow(t *testing.T) {
	f := newIngestFixture(t)
	var mu sync.Mutex
	failures := 0
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		if strings.HasPrefix(text, "Initech") && failures < 2 {
			failures++
			return nil, errors.New("timeout")
		}
		return mock.GenerateDeterministicVector(text, 8), nil
	}
	ing := f.ingestor(t, WithRetry(3, 0))
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.RowsFailed)
	assert.Equal(t, 5, f.embedder.CallCount())
}

func TestIngestor_ParseErrorNotMarked(t *testing.T) {
	f := newIngestFixture(t)
	outcomes := f.store.Outcomes()
	ing := f.ingestor(t, WithOutcomeRepository(outcomes))
	path := f.writeFile(t, "vendors.csv", "recordid,vendor_name,memo\n1,Acme\n")

	_, err := ing.ProcessFile(context.Background(), path)
	assert.ErrorIs(t, err, tabular.ErrParse)
	assert.False(t, f.ledger.Contains("vendors.csv"))
	assert.Equal(t, 0, f.embedder.CallCount())

	saved, err := outcomes.LoadOutcome(context.Background(), "vendors.csv")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.Marked)
	assert.Equal(t, 0, saved.RowsTotal)
}

func TestIngestor_EmptyRecordID(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	path := f.writeFile(t, "vendors.csv", "recordid,vendor_name,memo\n1,Acme,paper\n,Nobody,missing id\n")

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RowsTotal)
	assert.Equal(t, 1, outcome.RowsFailed)
	// The invalid row never reaches the embedder
	assert.Equal(t, []string{"Acme paper"}, f.embedder.Texts())
}

func TestIngestor_UpsertFailure(t *testing.T) {
	f := newIngestFixture(t)
	rows := &failingRows{RowRepository: f.store.Rows(), recordID: "1"}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	ing, err := NewIngestor(f.routes, rows, f.embedder, f.ledger, WithMetrics(m))
	require.NoError(t, err)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.RowsFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsFailedTotal.WithLabelValues("vendor_payments", metrics.StageUpsert)))
}

func TestIngestor_LedgerFailure(t *testing.T) {
	f := newIngestFixture(t)
	ing, err := NewIngestor(f.routes, f.store.Rows(), f.embedder, failingLedger{})
	require.NoError(t, err)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(context.Background(), path)
	assert.ErrorIs(t, err, ledger.ErrLedgerIO)
	require.NotNil(t, outcome)
	assert.False(t, outcome.Marked)

	// Rows were still written before the mark was attempted
	count, err := f.store.Rows().CountRows(context.Background(), "vendor_payments")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIngestor_OutcomeSaved(t *testing.T) {
	f := newIngestFixture(t)
	outcomes := f.store.Outcomes()
	ing := f.ingestor(t, WithOutcomeRepository(outcomes))
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	saved, err := outcomes.LoadOutcome(context.Background(), "vendors.csv")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, outcome.RunID, saved.RunID)
	assert.Equal(t, 3, saved.RowsTotal)
	assert.True(t, saved.Marked)
}

func TestIngestor_Progress(t *testing.T) {
	f := newIngestFixture(t)
	var buf bytes.Buffer
	ing := f.ingestor(t, WithProgress(&buf, 1))
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	_, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Processing vendors.csv")
	assert.Contains(t, output, "3/3")
}

func TestIngestor_CancelledContextCompletesFile(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := ing.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.RowsFailed)
	assert.True(t, outcome.Marked)
}

func TestIngestor_TabSeparated(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	path := f.writeFile(t, "journal.tsv", "recordid\tdescription\tdebit\nJ-1\taccrual reversal\t10\n")

	outcome, err := ing.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.RowsTotal)

	row, err := f.store.Rows().GetRow(context.Background(), "journal_entries", "J-1")
	require.NoError(t, err)
	debit, _ := row.Get("debit")
	assert.Equal(t, "10", debit)
}

func TestIngestor_ConcurrentProcessFile(t *testing.T) {
	f := newIngestFixture(t)
	ing := f.ingestor(t)
	path := f.writeFile(t, "vendors.csv", vendorsCSV)

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ing.ProcessFile(context.Background(), path)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, f.embedder.CallCount())
}
