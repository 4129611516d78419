package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "vendor_payments",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer table name that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("vendor_payments")
	id2 := IDFromContent("journal_entries")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestRow_Get(t *testing.T) {
	row := &Row{
		RecordID: "1",
		Columns: []Column{
			{Name: "recordid", Value: "1"},
			{Name: "vendor_name", Value: "Acme"},
		},
	}

	value, ok := row.Get("vendor_name")
	if !ok || value != "Acme" {
		t.Errorf("Get(vendor_name) = %q, %v; want Acme, true", value, ok)
	}

	value, ok = row.Get("missing")
	if ok || value != "" {
		t.Errorf("Get(missing) = %q, %v; want empty, false", value, ok)
	}
}

func TestRow_EmbeddingText(t *testing.T) {
	row := &Row{
		RecordID: "7",
		Columns: []Column{
			{Name: "recordid", Value: "7"},
			{Name: "memo", Value: "Q4 consulting"},
			{Name: "vendor_name", Value: "Acme Corp"},
		},
	}

	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{
			name:   "declared order is preserved",
			fields: []string{"vendor_name", "memo"},
			want:   "Acme Corp Q4 consulting",
		},
		{
			name:   "reverse order",
			fields: []string{"memo", "vendor_name"},
			want:   "Q4 consulting Acme Corp",
		},
		{
			name:   "missing field becomes empty string",
			fields: []string{"vendor_name", "amount", "memo"},
			want:   "Acme Corp  Q4 consulting",
		},
		{
			name:   "single field",
			fields: []string{"memo"},
			want:   "Q4 consulting",
		},
		{
			name:   "no fields",
			fields: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := row.EmbeddingText(tt.fields); got != tt.want {
				t.Errorf("EmbeddingText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngestOutcome_RowsSucceeded(t *testing.T) {
	outcome := &IngestOutcome{RowsTotal: 10, RowsFailed: 3}
	if got := outcome.RowsSucceeded(); got != 7 {
		t.Errorf("RowsSucceeded() = %d, want 7", got)
	}
}
