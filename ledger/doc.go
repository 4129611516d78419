// Package ledger records which files have been ingested.
//
// A FileLedger is a persistent set of file identifiers backed by a text file
// with one identifier per line, each terminated by a newline. The set is
// loaded once by Open and extended by MarkProcessed, which appends and fsyncs
// before returning so a crash right after it leaves the identifier recorded.
//
// The file may be edited by hand. A last line without its terminating newline
// is still an entry; the next MarkProcessed writes the missing newline before
// its own line.
//
//	l, err := ledger.Open(".loaded_files")
//	if err != nil {
//	    return err
//	}
//	if !l.Contains("vendors.csv") {
//	    // ingest, then
//	    err = l.MarkProcessed("vendors.csv")
//	}
//
// Every I/O failure wraps ErrLedgerIO.
package ledger
