// Package sqlite implements the history store (C7): a narrow
// Save/Get/List interface over one "pipeline_runs" table, backed by
// database/sql and the pure-Go modernc.org/sqlite driver, following the
// corpus's own SQLite store shape (nevindra-oasis/store/sqlite.Store:
// single shared connection, one struct wrapping *sql.DB, each method
// timed and logged).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"pipectl/internal/engine"
)

// Store persists engine.PersistenceSummary rows keyed by execution id.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a structured logger; without it the store is silent.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens (creating if necessary) a SQLite-backed Store at dbPath. A
// single connection is used, same as the teacher's store, so concurrent
// callers serialize through one connection rather than racing writers.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init creates the pipeline_runs table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS pipeline_runs (
		execution_id    TEXT PRIMARY KEY,
		pipeline_name   TEXT NOT NULL,
		status          TEXT NOT NULL,
		started_at      INTEGER NOT NULL,
		completed_at    INTEGER,
		progress        REAL NOT NULL,
		completed_steps INTEGER NOT NULL,
		total_steps     INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// Save upserts summary: a pipeline transitions through several summaries
// over its life (Pending -> Running -> terminal), and cmd/pipectl calls
// Save once before engine.Run starts and once after it returns (spec.md §5,
// SPEC_FULL.md §4.7).
func (s *Store) Save(ctx context.Context, summary engine.PersistenceSummary) error {
	start := time.Now()
	s.logger.Debug("sqlite: save pipeline run", "execution_id", summary.ExecutionID, "status", summary.Status)

	var completedAt *int64
	if summary.CompletedAt != nil {
		v := summary.CompletedAt.Unix()
		completedAt = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (execution_id, pipeline_name, status, started_at, completed_at, progress, completed_steps, total_steps, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET
		   pipeline_name=excluded.pipeline_name,
		   status=excluded.status,
		   completed_at=excluded.completed_at,
		   progress=excluded.progress,
		   completed_steps=excluded.completed_steps,
		   total_steps=excluded.total_steps,
		   updated_at=excluded.updated_at`,
		summary.ExecutionID, summary.PipelineName, summary.Status, summary.StartedAt.Unix(), completedAt,
		summary.Progress, summary.CompletedSteps, summary.TotalSteps, time.Now().Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite: save pipeline run failed", "execution_id", summary.ExecutionID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("sqlite: save pipeline run: %w", err)
	}
	s.logger.Debug("sqlite: save pipeline run ok", "execution_id", summary.ExecutionID, "duration", time.Since(start))
	return nil
}

// Get returns the summary for executionID, or ok=false if no row exists.
func (s *Store) Get(ctx context.Context, executionID string) (*engine.PersistenceSummary, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT execution_id, pipeline_name, status, started_at, completed_at, progress, completed_steps, total_steps
		 FROM pipeline_runs WHERE execution_id = ?`, executionID)

	summary, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get pipeline run: %w", err)
	}
	return summary, true, nil
}

// List returns every persisted summary, most recently started first.
func (s *Store) List(ctx context.Context) ([]engine.PersistenceSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, pipeline_name, status, started_at, completed_at, progress, completed_steps, total_steps
		 FROM pipeline_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []engine.PersistenceSummary
	for rows.Next() {
		summary, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan pipeline run: %w", err)
		}
		out = append(out, *summary)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanSummary(scan func(dest ...any) error) (*engine.PersistenceSummary, error) {
	var summary engine.PersistenceSummary
	var startedAt int64
	var completedAt sql.NullInt64

	if err := scan(&summary.ExecutionID, &summary.PipelineName, &summary.Status, &startedAt, &completedAt,
		&summary.Progress, &summary.CompletedSteps, &summary.TotalSteps); err != nil {
		return nil, err
	}

	summary.StartedAt = time.Unix(startedAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		summary.CompletedAt = &t
	}
	return &summary, nil
}
