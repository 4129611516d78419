package storage

import (
	"testing"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRow(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name string
		row  *core.Row
	}{
		{
			name: "minimal row",
			row:  &core.Row{RecordID: "1"},
		},
		{
			name: "row with columns and vector",
			row: &core.Row{
				RecordID: "42",
				Columns: []core.Column{
					{Name: "recordid", Value: "42"},
					{Name: "vendor_name", Value: "Acme Corp"},
					{Name: "memo", Value: "consulting retainer"},
				},
				Vector:    []float32{0.1, -0.2, 0.3},
				UpdatedAt: now,
			},
		},
		{
			name: "unicode and empty values",
			row: &core.Row{
				RecordID: "ü-7",
				Columns: []core.Column{
					{Name: "recordid", Value: "ü-7"},
					{Name: "memo", Value: ""},
					{Name: "note", Value: "Zahlung für Müller GmbH"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalRow(tt.row)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalRow(data)
			require.NoError(t, err)
			assert.Equal(t, tt.row, decoded)
		})
	}
}

func TestUnmarshalRow_Invalid(t *testing.T) {
	valid := MarshalRow(&core.Row{
		RecordID: "1",
		Columns:  []core.Column{{Name: "recordid", Value: "1"}},
		Vector:   []float32{1, 2, 3, 4},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"truncated", valid[:len(valid)-6]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRow(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestMarshalUnmarshalColumnsAndVector(t *testing.T) {
	columns := []core.Column{{Name: "recordid", Value: "9"}, {Name: "amount", Value: "12.50"}}
	decodedColumns, err := UnmarshalColumns(MarshalColumns(columns))
	require.NoError(t, err)
	assert.Equal(t, columns, decodedColumns)

	vector := []float32{0.5, 0.25, -1}
	data := MarshalVector(vector)
	assert.Len(t, data, 12)
	decodedVector, err := UnmarshalVector(data)
	require.NoError(t, err)
	assert.Equal(t, vector, decodedVector)

	_, err = UnmarshalVector(data[:5])
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestMarshalUnmarshalOutcome(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Microsecond)
	outcome := &core.IngestOutcome{
		RunID:      "6f1c2a5e-0000-4000-8000-000000000001",
		File:       "vendors.csv",
		Table:      "vendor_payments",
		RowsTotal:  3,
		RowsFailed: 1,
		Marked:     true,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	decoded, err := UnmarshalOutcome(MarshalOutcome(outcome))
	require.NoError(t, err)
	assert.Equal(t, outcome, decoded)
	assert.Equal(t, 2, decoded.RowsSucceeded())
}
