// Package ingestion loads routed audit-data files into the row store.
//
// An Ingestor handles one file at a time:
//   - Parses the file into rows (a parse failure is fatal to the file)
//   - Embeds each row's text fields and upserts the row (a failure here is
//     fatal to that row only, and is logged with the file and row index)
//   - Marks the file in the ledger once every row has been attempted
//
// ProcessFile is the dispatch entry used by the folder watcher and the CLI.
// It resolves the route from the file's base name and consults the ledger
// under the same lock that covers ingestion and marking, so one identifier
// is never ingested twice concurrently.
//
// Ingestion of a file is not interrupted by cancellation of the caller's
// context; cancellation is observed between files.
package ingestion
