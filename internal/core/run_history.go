package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgxpool.Pool used by RunHistory.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunHistory persists finished runs in PostgreSQL. It implements RunStore.
type RunHistory struct {
	db DBTX
}

// NewRunHistory creates a run history over a pool or connection.
func NewRunHistory(db DBTX) *RunHistory {
	return &RunHistory{db: db}
}

const createRunsTable = `CREATE TABLE IF NOT EXISTS annotation_runs (
	id          uuid PRIMARY KEY,
	dataset     text NOT NULL,
	description text NOT NULL DEFAULT '',
	source      text NOT NULL DEFAULT '',
	status      text NOT NULL,
	columns     integer NOT NULL,
	annotated   integer NOT NULL,
	report      jsonb,
	error       text NOT NULL DEFAULT '',
	code        text NOT NULL DEFAULT '',
	action      text NOT NULL DEFAULT '',
	started_at  timestamptz NOT NULL,
	finished_at timestamptz
)`

// EnsureSchema creates the runs table if it does not exist.
func (h *RunHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create annotation_runs: %w", err)
	}
	return nil
}

// SaveRun inserts or replaces a run.
func (h *RunHistory) SaveRun(ctx context.Context, run Run) error {
	id := ToPgUUID(run.ID)
	if !id.Valid {
		return fmt.Errorf("save run: invalid id %q", run.ID)
	}

	var report []byte
	if run.Report != nil {
		var err error
		if report, err = json.Marshal(run.Report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}

	_, err := h.db.Exec(ctx, `INSERT INTO annotation_runs
		(id, dataset, description, source, status, columns, annotated, report, error, code, action, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, annotated = EXCLUDED.annotated, report = EXCLUDED.report,
			error = EXCLUDED.error, code = EXCLUDED.code, action = EXCLUDED.action,
			finished_at = EXCLUDED.finished_at`,
		id, run.Dataset.Name, run.Dataset.Description, run.Source, string(run.Status),
		run.Columns, run.Annotated, report, run.Error, run.Code, run.Action,
		run.StartedAt, toPgTimestamptz(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

const selectRun = `SELECT id, dataset, description, source, status, columns, annotated,
	report, error, code, action, started_at, finished_at FROM annotation_runs`

// GetRun loads one run with its report.
func (h *RunHistory) GetRun(ctx context.Context, id string) (Run, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	run, err := scanRun(h.db.QueryRow(ctx, selectRun+" WHERE id = $1", pgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (h *RunHistory) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.Query(ctx, selectRun+" ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PurgeRunsBefore deletes runs started before cutoff and reports how many
// were removed.
func (h *RunHistory) PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, "DELETE FROM annotation_runs WHERE started_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run      Run
		id       pgtype.UUID
		status   string
		report   []byte
		finished pgtype.Timestamptz
	)
	err := row.Scan(&id, &run.Dataset.Name, &run.Dataset.Description, &run.Source, &status,
		&run.Columns, &run.Annotated, &report, &run.Error, &run.Code, &run.Action,
		&run.StartedAt, &finished)
	if err != nil {
		return Run{}, err
	}

	run.ID = PgUUIDToString(id)
	run.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if len(report) > 0 {
		run.Report = &Report{}
		if err := json.Unmarshal(report, run.Report); err != nil {
			return Run{}, fmt.Errorf("decode report for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

// ToPgUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func ToPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func toPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
