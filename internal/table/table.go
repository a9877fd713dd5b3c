// Package table loads tabular datasets into a small in-memory columnar
// frame that exposes column names and the leading values of each column.
//
// Only the first rows of a dataset are needed for annotation, so every
// loader takes a row limit and stops reading once it is reached.
package table

import (
	"errors"
	"fmt"
	"strconv"
)

// DefaultMaxRows is the number of rows loaders read when no limit is given.
const DefaultMaxRows = 1000

// Table is the read-only view the annotation engine needs.
type Table interface {
	// Columns returns column names in dataset order.
	Columns() []string
	// Head returns up to n leading values of the named column rendered as text.
	Head(name string, n int) []string
}

var (
	// ErrNoColumns is returned when a source has no header or schema fields.
	ErrNoColumns = errors.New("table has no columns")

	// ErrRowWidth is returned when a row has more fields than the header.
	ErrRowWidth = errors.New("row wider than header")
)

// Frame is a column-major table of display strings.
type Frame struct {
	names []string
	index map[string]int
	cols  [][]string
}

// NewFrame creates an empty frame. Blank names become "Unnamed: <i>" and
// repeated names get a ".<n>" suffix so every column is addressable.
func NewFrame(names []string) (*Frame, error) {
	if len(names) == 0 {
		return nil, ErrNoColumns
	}
	f := &Frame{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		cols:  make([][]string, len(names)),
	}
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for {
			if _, taken := f.index[name]; !taken {
				break
			}
			seen[base]++
			name = base + "." + strconv.Itoa(seen[base])
		}
		f.names[i] = name
		f.index[name] = i
	}
	return f, nil
}

// Append adds a row. Short rows are padded with empty values.
func (f *Frame) Append(row []string) error {
	if len(row) > len(f.names) {
		return fmt.Errorf("%w: %d fields, header has %d", ErrRowWidth, len(row), len(f.names))
	}
	for i := range f.cols {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		f.cols[i] = append(f.cols[i], v)
	}
	return nil
}

// Columns implements Table.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// Head implements Table. Unknown columns yield nil.
func (f *Frame) Head(name string, n int) []string {
	i, ok := f.index[name]
	if !ok || n <= 0 {
		return nil
	}
	col := f.cols[i]
	if n > len(col) {
		n = len(col)
	}
	return append([]string(nil), col[:n]...)
}

// Values returns every loaded value of the named column.
func (f *Frame) Values(name string) ([]string, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), f.cols[i]...), true
}

// Rows returns the number of loaded rows.
func (f *Frame) Rows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.cols[0])
}

// FromColumns builds a frame from named columns of possibly uneven length.
// Missing trailing values are treated as empty.
func FromColumns(names []string, values map[string][]string) (*Frame, error) {
	f, err := NewFrame(names)
	if err != nil {
		return nil, err
	}
	rows := 0
	for _, name := range names {
		if n := len(values[name]); n > rows {
			rows = n
		}
	}
	for r := 0; r < rows; r++ {
		row := make([]string, len(names))
		for c, name := range names {
			if col := values[name]; r < len(col) {
				row[c] = col[r]
			}
		}
		if err := f.Append(row); err != nil {
			return nil, err
		}
	}
	return f, nil
}
