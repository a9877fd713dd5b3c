package table

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// LoadArrow reads up to maxRows rows from an Arrow IPC file (random-access
// ".arrow"/".feather" layout).
func LoadArrow(path string, maxRows int) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	return ReadArrowFile(fh, maxRows)
}

// ReadArrowFile reads up to maxRows rows from an Arrow IPC file held by r.
func ReadArrowFile(r ipc.ReadAtSeeker, maxRows int) (*Frame, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	rdr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("arrow file: %w", err)
	}
	defer rdr.Close()

	f, err := frameForSchema(rdr.Schema())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rdr.NumRecords() && f.Rows() < maxRows; i++ {
		rec, err := rdr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("arrow record %d: %w", i, err)
		}
		if err := appendRecord(f, rec, maxRows); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ReadArrowStream reads up to maxRows rows from an Arrow IPC stream.
func ReadArrowStream(r io.Reader, maxRows int) (*Frame, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("arrow stream: %w", err)
	}
	defer rdr.Release()

	f, err := frameForSchema(rdr.Schema())
	if err != nil {
		return nil, err
	}
	for f.Rows() < maxRows && rdr.Next() {
		if err := appendRecord(f, rdr.Record(), maxRows); err != nil {
			return nil, err
		}
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("arrow stream: %w", err)
	}
	return f, nil
}

func frameForSchema(schema *arrow.Schema) (*Frame, error) {
	fields := schema.Fields()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}
	return NewFrame(names)
}

// appendRecord copies rows of rec into f until f holds maxRows rows.
// The record is only borrowed; callers keep ownership.
func appendRecord(f *Frame, rec arrow.Record, maxRows int) error {
	cols := int(rec.NumCols())
	for r := 0; r < int(rec.NumRows()) && f.Rows() < maxRows; r++ {
		row := make([]string, cols)
		for c := 0; c < cols; c++ {
			col := rec.Column(c)
			if col.IsNull(r) {
				continue
			}
			row[c] = sanitize(col.ValueStr(r))
		}
		if err := f.Append(row); err != nil {
			return err
		}
	}
	return nil
}
