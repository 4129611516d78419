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

package reembed

import (
	"context"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
)

const (
	// DefaultBatchSize is the default number of rows handed to each batch
	DefaultBatchSize = 100
)

// RowIterator iterates over all rows of a table in batches.
type RowIterator struct {
	rows      storage.RowRepository
	table     string
	batchSize int
}

// NewRowIterator creates a new row iterator.
// batchSize: number of rows in each batch (defaults to DefaultBatchSize if <= 0)
func NewRowIterator(rows storage.RowRepository, table string, batchSize int) *RowIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RowIterator{
		rows:      rows,
		table:     table,
		batchSize: batchSize,
	}
}

// ForEach iterates over all rows in natural store order, calling fn for each batch.
// Iteration stops on first error from fn or when all rows are processed.
// Context cancellation is checked between batches.
func (it *RowIterator) ForEach(ctx context.Context, fn func([]*core.Row) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*core.Row, 0, it.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]*core.Row, 0, it.batchSize)
		return ctx.Err()
	}

	err := it.rows.ForEachRow(ctx, it.table, func(row *core.Row) error {
		batch = append(batch, row)
		if len(batch) < it.batchSize {
			return nil
		}
		return flush()
	})
	if err != nil {
		return err
	}

	return flush()
}
