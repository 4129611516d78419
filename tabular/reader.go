// Package tabular parses delimited audit-data files into rows.
//
// The first record is the header. Every later record becomes a core.Row whose
// columns follow header order. The header must contain a recordid column;
// a row whose recordid cell is empty is still returned, and it is up to the
// caller to reject it.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/auditrag/core"
)

// ErrParse indicates a file that is unreadable or malformed.
// A parse failure is fatal to the whole file.
var ErrParse = errors.New("parse error")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is the parsed content of one file.
type Table struct {
	Header []string
	Rows   []*core.Row
}

// DelimiterFor returns the field delimiter for a file name: tab for .tsv,
// comma otherwise.
func DelimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// ReadFile parses the file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer f.Close()

	table, err := Read(f, DelimiterFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// Read parses delimited records from r. Short records are padded with empty
// values. A record with more fields than the header makes the whole input
// malformed.
func Read(r io.Reader, delimiter rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	header, err = normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	table := &Table{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		if len(record) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: record on line %d has %d fields, header has %d",
				ErrParse, line, len(record), len(header))
		}
		table.Rows = append(table.Rows, toRow(header, record))
	}
	return table, nil
}

func normalizeHeader(header []string) ([]string, error) {
	seen := make(map[string]struct{}, len(header))
	hasRecordID := false
	out := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: header column %d is empty", ErrParse, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate header column %q", ErrParse, name)
		}
		seen[name] = struct{}{}
		if name == core.RecordIDColumn {
			hasRecordID = true
		}
		out[i] = name
	}
	if !hasRecordID {
		return nil, fmt.Errorf("%w: header has no %s column", ErrParse, core.RecordIDColumn)
	}
	return out, nil
}

func toRow(header, record []string) *core.Row {
	row := &core.Row{Columns: make([]core.Column, len(header))}
	for i, name := range header {
		var value string
		if i < len(record) {
			value = record[i]
		}
		row.Columns[i] = core.Column{Name: name, Value: value}
		if name == core.RecordIDColumn {
			row.RecordID = strings.TrimSpace(value)
		}
	}
	return row
}
