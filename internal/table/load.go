package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for sources no loader understands.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// Load opens a table from a source string:
//
//	data/readings.csv            comma separated
//	data/readings.tsv            tab separated
//	data/readings.arrow          Arrow IPC file (also .feather)
//	data/readings.arrows         Arrow IPC stream
//	data/readings.xlsx           first worksheet of an Excel workbook (also .xlsm)
//	data/store.sqlite#readings   table inside a SQLite file (also .db, .sqlite3)
//	postgres://host/db#readings  relation in PostgreSQL (also postgresql://)
func Load(ctx context.Context, source string, maxRows int) (*Frame, error) {
	if strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://") {
		url, relation, ok := strings.Cut(source, "#")
		if !ok || relation == "" {
			return nil, fmt.Errorf("postgres source needs #relation: %w", ErrUnsupportedFormat)
		}
		pool, err := ConnectPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return LoadPostgres(ctx, pool, relation, maxRows)
	}

	path, fragment, _ := strings.Cut(source, "#")
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer fh.Close()
		opts := CSVOptions{MaxRows: maxRows}
		if ext == ".tsv" {
			opts.Comma = '\t'
		}
		return ReadCSV(fh, opts)

	case ".arrow", ".feather":
		return LoadArrow(path, maxRows)

	case ".xlsx", ".xlsm":
		return LoadXLSX(path, maxRows)

	case ".arrows":
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer fh.Close()
		return ReadArrowStream(fh, maxRows)

	case ".sqlite", ".sqlite3", ".db":
		if fragment == "" {
			return nil, fmt.Errorf("sqlite source needs #table: %w", ErrUnsupportedFormat)
		}
		return LoadSQLite(ctx, path, fragment, maxRows)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ReadUpload reads an uploaded table whose format is given by the extension
// of name. Only self-contained formats are accepted.
func ReadUpload(name string, data []byte, maxRows int) (*Frame, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".tsv", ".txt":
		opts := CSVOptions{MaxRows: maxRows}
		if ext == ".tsv" {
			opts.Comma = '\t'
		}
		return ReadCSV(bytes.NewReader(data), opts)
	case ".arrow", ".feather":
		return ReadArrowFile(bytes.NewReader(data), maxRows)
	case ".arrows":
		return ReadArrowStream(bytes.NewReader(data), maxRows)
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data), maxRows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
