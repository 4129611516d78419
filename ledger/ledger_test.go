package ledger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), DefaultPath)
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	l, err := Open(ledgerPath(t))
	require.NoError(t, err)
	assert.Zero(t, l.Len())
	assert.False(t, l.Contains("vendors.csv"))
}

func TestMarkProcessed_PersistsAcrossOpen(t *testing.T) {
	path := ledgerPath(t)

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed("vendors.csv"))
	require.NoError(t, l.MarkProcessed("journal.csv"))
	assert.True(t, l.Contains("vendors.csv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "vendors.csv\njournal.csv\n", string(data))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"journal.csv", "vendors.csv"}, reopened.Entries())
}

func TestMarkProcessed_Idempotent(t *testing.T) {
	path := ledgerPath(t)
	l, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.MarkProcessed("vendors.csv"))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "vendors.csv\n", string(data))
	assert.Equal(t, 1, l.Len())
}

func TestMarkProcessed_InvalidIdentifier(t *testing.T) {
	l, err := Open(ledgerPath(t))
	require.NoError(t, err)

	for _, id := range []string{"", "two\nlines", "carriage\rreturn"} {
		err := l.MarkProcessed(id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "id %q", id)
	}
	assert.Zero(t, l.Len())
}

func TestOpen_KeepsUnterminatedLastLine(t *testing.T) {
	path := ledgerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("journal.csv\nvendors.csv"), 0644))

	l, err := Open(path)
	require.NoError(t, err)
	assert.True(t, l.Contains("journal.csv"))
	assert.True(t, l.Contains("vendors.csv"))

	// Opening leaves the file untouched
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "journal.csv\nvendors.csv", string(data))

	// The next append terminates the last line first
	require.NoError(t, l.MarkProcessed("payroll.csv"))
	require.NoError(t, l.MarkProcessed("expenses.csv"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "journal.csv\nvendors.csv\npayroll.csv\nexpenses.csv\n", string(data))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"expenses.csv", "journal.csv", "payroll.csv", "vendors.csv"}, reopened.Entries())
}

func TestOpen_ToleratesBlankAndCRLFLines(t *testing.T) {
	path := ledgerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("a.csv\r\n\nb.csv\n"), 0644))

	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, l.Entries())
}

func TestLedgerIOErrors(t *testing.T) {
	t.Run("unreadable ledger", func(t *testing.T) {
		// A directory cannot be read as a ledger file
		_, err := Open(t.TempDir())
		assert.ErrorIs(t, err, ErrLedgerIO)
	})

	t.Run("unwritable ledger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", DefaultPath)
		l, err := Open(path)
		require.NoError(t, err)

		err = l.MarkProcessed("vendors.csv")
		assert.ErrorIs(t, err, ErrLedgerIO)
		assert.False(t, l.Contains("vendors.csv"))
	})
}

func TestConcurrentMarks(t *testing.T) {
	path := ledgerPath(t)
	l, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.MarkProcessed("same.csv"))
			_ = l.Contains("same.csv")
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "same.csv\n", string(data))
}
