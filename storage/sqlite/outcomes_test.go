package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeRepository(t *testing.T) {
	repo := newTestDB(t).Outcomes()
	ctx := context.Background()

	missing, err := repo.LoadOutcome(ctx, "vendors.csv")
	require.NoError(t, err)
	assert.Nil(t, missing)

	start := time.Now().UTC().Truncate(time.Microsecond)
	outcome := &core.IngestOutcome{
		RunID: "run-1", File: "vendors.csv", Table: "vendor_payments",
		RowsTotal: 3, RowsFailed: 1, Marked: true,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}
	require.NoError(t, repo.SaveOutcome(ctx, outcome))

	loaded, err := repo.LoadOutcome(ctx, "vendors.csv")
	require.NoError(t, err)
	assert.Equal(t, outcome, loaded)

	require.NoError(t, repo.SaveOutcome(ctx, &core.IngestOutcome{RunID: "run-2", File: "vendors.csv", Table: "vendor_payments"}))
	require.NoError(t, repo.SaveOutcome(ctx, &core.IngestOutcome{RunID: "run-3", File: "a.csv", Table: "a"}))

	all, err := repo.ListOutcomes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.csv", all[0].File)
	assert.Equal(t, "run-2", all[1].RunID)
	assert.False(t, all[1].Marked)
}
