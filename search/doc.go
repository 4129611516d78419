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

// Package search retrieves the stored rows most similar to a query.
//
// The Retriever embeds the query once and searches every configured table
// concurrently on a worker pool. Each table yields at most a fixed number of
// rows in descending cosine similarity. A table whose search fails is logged
// and listed in Report.Failed, and the other tables are still reported.
//
// A Report renders as plain text grouped by table:
//
//	Audit Query: significant vendor payments in Q4
//
//	Table: vendor_payments
//	 - Similarity: 0.8123, Data: {recordid: 2, vendor_name: Globex, memo: consulting retainer}
package search
