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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/auditrag/core"
)

// encoder appends mus-encoded values to a pre-sized buffer.
type encoder struct {
	buf []byte
	off int
}

func (e *encoder) str(v string) { e.off += ord.String.Marshal(v, e.buf[e.off:]) }
func (e *encoder) num(v int) { e.off += varint.Int.Marshal(v, e.buf[e.off:]) }
func (e *encoder) i64(v int64) { e.off += varint.Int64.Marshal(v, e.buf[e.off:]) }
func (e *encoder) flag(v bool) { e.off += ord.Bool.Marshal(v, e.buf[e.off:]) }
func (e *encoder) f32(v float32) { e.off += raw.Float32.Marshal(v, e.buf[e.off:]) }
func (e *encoder) stamp(t time.Time) { e.i64(timeToInt(t)) }

// decoder reads mus-encoded values and keeps the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.buf[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) num() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.buf[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) i64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.buf[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) flag() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.buf[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) f32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.buf[d.off:])
	d.advance(n, err)
	return v
}

func (d *decoder) stamp() time.Time {
	return intToTime(d.i64())
}

// length reads a collection length and checks it against the bytes left,
// each element needing at least min bytes.
func (d *decoder) length(min int) int {
	l := d.num()
	if d.err != nil {
		return 0
	}
	if l < 0 || l*min > len(d.buf)-d.off {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) advance(n int, err error) {
	if err != nil {
		d.err = err
		return
	}
	d.off += n
}

func (d *decoder) finish() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

func timeToInt(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func intToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func rowSize(row *core.Row) int {
	size := ord.String.Size(row.RecordID)
	size += varint.Int.Size(len(row.Columns))
	for _, c := range row.Columns {
		size += ord.String.Size(c.Name) + ord.String.Size(c.Value)
	}
	size += varint.Int.Size(len(row.Vector))
	for _, f := range row.Vector {
		size += raw.Float32.Size(f)
	}
	size += varint.Int64.Size(timeToInt(row.UpdatedAt))
	return size
}

// MarshalRow serializes a Row to bytes.
func MarshalRow(row *core.Row) []byte {
	e := &encoder{buf: make([]byte, rowSize(row))}
	e.str(row.RecordID)
	e.num(len(row.Columns))
	for _, c := range row.Columns {
		e.str(c.Name)
		e.str(c.Value)
	}
	e.num(len(row.Vector))
	for _, f := range row.Vector {
		e.f32(f)
	}
	e.stamp(row.UpdatedAt)
	return e.buf
}

// UnmarshalRow deserializes a Row from bytes.
func UnmarshalRow(data []byte) (*core.Row, error) {
	d := &decoder{buf: data}
	row := &core.Row{RecordID: d.str()}
	if n := d.length(2); n > 0 {
		row.Columns = make([]core.Column, n)
		for i := range row.Columns {
			row.Columns[i] = core.Column{Name: d.str(), Value: d.str()}
		}
	}
	if n := d.length(4); n > 0 {
		row.Vector = make([]float32, n)
		for i := range row.Vector {
			row.Vector[i] = d.f32()
		}
	}
	row.UpdatedAt = d.stamp()
	if err := d.finish(); err != nil {
		return nil, err
	}
	return row, nil
}

// MarshalColumns serializes only the columns of a row. The sqlite backend
// stores the embedding in its own column.
func MarshalColumns(columns []core.Column) []byte {
	size := varint.Int.Size(len(columns))
	for _, c := range columns {
		size += ord.String.Size(c.Name) + ord.String.Size(c.Value)
	}
	e := &encoder{buf: make([]byte, size)}
	e.num(len(columns))
	for _, c := range columns {
		e.str(c.Name)
		e.str(c.Value)
	}
	return e.buf
}

// UnmarshalColumns deserializes columns written by MarshalColumns.
func UnmarshalColumns(data []byte) ([]core.Column, error) {
	d := &decoder{buf: data}
	var columns []core.Column
	if n := d.length(2); n > 0 {
		columns = make([]core.Column, n)
		for i := range columns {
			columns[i] = core.Column{Name: d.str(), Value: d.str()}
		}
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return columns, nil
}

// MarshalVector serializes an embedding as consecutive raw float32 values.
func MarshalVector(vector []float32) []byte {
	e := &encoder{buf: make([]byte, len(vector)*raw.Float32.Size(0))}
	for _, f := range vector {
		e.f32(f)
	}
	return e.buf
}

// UnmarshalVector deserializes an embedding written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	width := raw.Float32.Size(0)
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	d := &decoder{buf: data}
	vector := make([]float32, len(data)/width)
	for i := range vector {
		vector[i] = d.f32()
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return vector, nil
}

// MarshalOutcome serializes an IngestOutcome to bytes.
func MarshalOutcome(o *core.IngestOutcome) []byte {
	size := ord.String.Size(o.RunID) + ord.String.Size(o.File) + ord.String.Size(o.Table) +
		varint.Int.Size(o.RowsTotal) + varint.Int.Size(o.RowsFailed) + ord.Bool.Size(o.Marked) +
		varint.Int64.Size(timeToInt(o.StartedAt)) + varint.Int64.Size(timeToInt(o.FinishedAt))
	e := &encoder{buf: make([]byte, size)}
	e.str(o.RunID)
	e.str(o.File)
	e.str(o.Table)
	e.num(o.RowsTotal)
	e.num(o.RowsFailed)
	e.flag(o.Marked)
	e.stamp(o.StartedAt)
	e.stamp(o.FinishedAt)
	return e.buf
}

// UnmarshalOutcome deserializes an IngestOutcome from bytes.
func UnmarshalOutcome(data []byte) (*core.IngestOutcome, error) {
	d := &decoder{buf: data}
	o := &core.IngestOutcome{
		RunID:      d.str(),
		File:       d.str(),
		Table:      d.str(),
		RowsTotal:  d.num(),
		RowsFailed: d.num(),
		Marked:     d.flag(),
		StartedAt:  d.stamp(),
		FinishedAt: d.stamp(),
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return o, nil
}
