package table

// xlsx.go reads Excel workbooks. Only the first worksheet is used and its
// first row is the header. Cells come back as excelize formats them, so
// dates and numbers keep the text a spreadsheet user sees.

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads the first worksheet of the workbook at path.
func LoadXLSX(path string, maxRows int) (*Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer wb.Close()
	return readWorkbook(wb, maxRows)
}

// ReadXLSX reads the first worksheet of a workbook from r.
func ReadXLSX(r io.Reader, maxRows int) (*Frame, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()
	return readWorkbook(wb, maxRows)
}

func readWorkbook(wb *excelize.File, maxRows int) (*Frame, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %w", ErrNoColumns)
	}
	sheet := sheets[0]

	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		return nil, fmt.Errorf("sheet %q is empty: %w", sheet, ErrNoColumns)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q header: %w", sheet, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	f, err := NewFrame(header)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}

	for row := 2; f.Rows() < maxRows && rows.Next(); row++ {
		rec, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q row %d: %w", sheet, row, err)
		}
		if err := f.Append(rec); err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheet, row, err)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return f, nil
}
