package table

// csv.go reads delimited text. It tolerates the usual export artifacts:
//
//   - a leading UTF-8 BOM from Windows tools
//   - invalid UTF-8 bytes, replaced with '?'
//   - ragged rows shorter than the header
//
// Reading stops after maxRows data rows.

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Comma is the field delimiter (default ',').
	Comma rune
	// MaxRows limits data rows read (default DefaultMaxRows).
	MaxRows int
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}

	cr := csv.NewReader(skipBOM(r))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file: %w", ErrNoColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(sanitize(header[i]))
	}

	f, err := NewFrame(header)
	if err != nil {
		return nil, err
	}

	for line := 2; f.Rows() < opts.MaxRows; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv at line %d: %w", line, err)
		}
		for i := range rec {
			rec[i] = sanitize(rec[i])
		}
		if err := f.Append(rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return f, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == string(utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "?")
}
