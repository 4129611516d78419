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

package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// RecordIDColumn is the column every ingested row must carry.
// It is the upsert key inside a target table.
const RecordIDColumn = "recordid"

// ID is a fixed-width identifier derived from content.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Route maps a watched file name to the table its rows are written to
// and the ordered list of columns used to build embedding input.
type Route struct {
	FileName   string
	Table      string
	TextFields []string
}

// Column is a single named value from a source row.
type Column struct {
	Name  string
	Value string
}

// Row is one record from an ingested file.
// Columns keep the order of the source header and include the recordid column.
type Row struct {
	RecordID  string
	Columns   []Column
	Vector    []float32 // Embedding computed from the route's text fields
	UpdatedAt time.Time // When the row was last written to the store
}

// Get returns the value of the named column.
func (r *Row) Get(name string) (string, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// EmbeddingText builds the embedding input for the row: the values of fields,
// in the given order, joined by single spaces. Missing fields contribute an empty string.
func (r *Row) EmbeddingText(fields []string) string {
	values := make([]string, len(fields))
	for i, field := range fields {
		values[i], _ = r.Get(field)
	}
	return strings.Join(values, " ")
}

// SimilarityResult is a stored row matched by a similarity search.
type SimilarityResult struct {
	Table string
	Row   *Row
	Score float32 // Cosine similarity in [-1, 1]
}

// IngestOutcome summarizes one ingestion of a file.
type IngestOutcome struct {
	RunID      string
	File       string
	Table      string
	RowsTotal  int
	RowsFailed int
	Marked     bool // Whether the file was recorded in the ledger
	StartedAt  time.Time
	FinishedAt time.Time
}

// RowsSucceeded returns the number of rows that were embedded and written.
func (o *IngestOutcome) RowsSucceeded() int {
	return o.RowsTotal - o.RowsFailed
}
