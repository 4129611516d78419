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


// Package storage provides the storage abstraction layer for auditrag.
//
// This package defines repository interfaces that decouple storage implementation
// from ingestion and retrieval. Two backends implement them:
//
//   - storage/badger: embedded key-value store, the default
//   - storage/sqlite: relational store, one SQL table per target table
//
// # Architecture
//
//   - RowRepository: upsert, lookup, iteration and similarity search over rows
//   - OutcomeRepository: the last ingestion outcome per file
//   - Store: a backend exposing both, with a single Close
//
// Rows are grouped by target table. A row is identified within its table by
// its recordid; writing a row whose recordid already exists overwrites every
// column and the embedding.
//
// # Usage
//
//	store, err := badger.OpenStore("/var/lib/auditrag", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Rows().UpsertRow(ctx, "vendor_payments", row)
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Similarity
//
// Both backends rank rows with CosineSimilarity through a Ranker, so equal
// scores keep the backend's natural order and rows whose embedding dimension
// differs from the query are skipped.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
