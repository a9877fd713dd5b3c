package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ConnectPostgres opens a small pool for sampling relations.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// LoadPostgres reads up to maxRows rows of relation, which may be
// schema-qualified ("public.readings").
func LoadPostgres(ctx context.Context, db Querier, relation string, maxRows int) (*Frame, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	ident := pgx.Identifier(strings.Split(relation, ".")).Sanitize()
	rows, err := db.Query(ctx, "SELECT * FROM "+ident+" LIMIT $1", maxRows)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}
	f, err := NewFrame(names)
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = renderPg(v)
		}
		if err := f.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return f, nil
}

// renderPg handles the pgx value types that have no useful default text.
func renderPg(v any) string {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return ""
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return render(f.Float64)
	case [16]byte:
		return uuid.UUID(x).String()
	}
	return render(v)
}
