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


package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/storage"
)

// OutcomeRepository implements storage.OutcomeRepository for BadgerDB.
type OutcomeRepository struct {
	backend *Backend
}

var _ storage.OutcomeRepository = (*OutcomeRepository)(nil)

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(backend *Backend) *OutcomeRepository {
	return &OutcomeRepository{
		backend: backend,
	}
}

// SaveOutcome persists the outcome for a file, replacing the previous one.
func (r *OutcomeRepository) SaveOutcome(ctx context.Context, outcome *core.IngestOutcome) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if outcome.FinishedAt.IsZero() {
			outcome.FinishedAt = time.Now().UTC()
		}
		key := makeOutcomeKey(outcome.File)
		value := storage.MarshalOutcome(outcome)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadOutcome retrieves the outcome for a file.
// Returns nil, nil if no outcome exists.
func (r *OutcomeRepository) LoadOutcome(ctx context.Context, file string) (*core.IngestOutcome, error) {
	var outcome *core.IngestOutcome
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeOutcomeKey(file))
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			outcome, unmarshalErr = storage.UnmarshalOutcome(val)
			return unmarshalErr
		})
	}, false)

	return outcome, err
}

// ListOutcomes returns all outcomes in file name order.
func (r *OutcomeRepository) ListOutcomes(ctx context.Context) ([]*core.IngestOutcome, error) {
	var outcomes []*core.IngestOutcome
	err := r.backend.iteratePrefix(ctx, []byte(outcomePrefix), func(_, val []byte) error {
		outcome, err := storage.UnmarshalOutcome(val)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, outcome)
		return nil
	})
	return outcomes, err
}
