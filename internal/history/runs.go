package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode is how a run obtained its views.
type Mode string

const (
	ModeGenerate  Mode = "generate"
	ModeViewsOnly Mode = "views_only"
	ModeAttach    Mode = "attach"
)

// Entry is one finished run.
type Entry struct {
	ID           int64
	RunID        string
	SourceName   string
	Mode         Mode
	Stage        string
	ErrorKind    string
	ErrorMessage string
	ViewCount    int
	Checks       int
	ModelURL     string
	OutputDir    string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Succeeded reports whether the run ended without an error.
func (e Entry) Succeeded() bool {
	return e.ErrorKind == ""
}

// Duration is the wall time the run took.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

const runColumns = "id, run_id, source_name, mode, stage, error_kind, error_message, view_count, checks, model_url, output_dir, started_at, finished_at"

// Record appends a finished run. Run IDs are unique.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if strings.TrimSpace(e.RunID) == "" {
		return 0, errors.New("record run: run id is required")
	}
	if e.Mode == "" {
		e.Mode = ModeGenerate
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	res, err := s.exec(ctx,
		`INSERT INTO runs (run_id, source_name, mode, stage, error_kind, error_message, view_count, checks, model_url, output_dir, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		e.SourceName,
		string(e.Mode),
		e.Stage,
		nullableString(e.ErrorKind),
		nullableString(e.ErrorMessage),
		e.ViewCount,
		e.Checks,
		nullableString(e.ModelURL),
		nullableString(e.OutputDir),
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return id, nil
}

// List returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs ORDER BY finished_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the run with runID, or nil when it is unknown.
func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &entry, nil
}

// Clear removes every run and reports how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, "DELETE FROM runs")
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e            Entry
		mode         string
		errorKind    sql.NullString
		errorMessage sql.NullString
		modelURL     sql.NullString
		outputDir    sql.NullString
		startedRaw   string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&e.ID,
		&e.RunID,
		&e.SourceName,
		&mode,
		&e.Stage,
		&errorKind,
		&errorMessage,
		&e.ViewCount,
		&e.Checks,
		&modelURL,
		&outputDir,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	e.Mode = Mode(mode)
	e.ErrorKind = errorKind.String
	e.ErrorMessage = errorMessage.String
	e.ModelURL = modelURL.String
	e.OutputDir = outputDir.String
	e.StartedAt = parseTime(startedRaw)
	e.FinishedAt = parseTime(finishedRaw)
	return e, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
