package badger

import (
	"encoding/binary"

	"github.com/poiesic/auditrag/core"
)

// Key prefixes for different data types
const (
	rowPrefix     = "row:"
	outcomePrefix = "outcome:"
)

// makeTablePrefix generates the key prefix shared by every row of a table.
// Format: row:<8-byte table id>:
// The table id is fixed width so no table's prefix is a prefix of another's.
func makeTablePrefix(table string) []byte {
	buf := make([]byte, len(rowPrefix)+8+1)
	offset := copy(buf, rowPrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(table)))
	buf[offset+8] = ':'
	return buf
}

// makeRowKey generates the key for a row.
// Format: row:<8-byte table id>:<recordid>
func makeRowKey(table, recordID string) []byte {
	prefix := makeTablePrefix(table)
	buf := make([]byte, len(prefix)+len(recordID))
	offset := copy(buf, prefix)
	copy(buf[offset:], recordID)
	return buf
}

// makeOutcomeKey generates the key for the ingestion outcome of a file.
func makeOutcomeKey(file string) []byte {
	return []byte(outcomePrefix + file)
}
