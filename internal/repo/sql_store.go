package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-trainer/internal/utils"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		started_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		run_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		indicator TEXT NOT NULL,
		layer TEXT NOT NULL,
		category TEXT NOT NULL,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS service_calls (
		run_id TEXT NOT NULL,
		service TEXT NOT NULL,
		start_ts TEXT NOT NULL,
		end_ts TEXT NOT NULL,
		response_code TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS injections (
		run_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		description TEXT NOT NULL,
		duration_seconds REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS service_stats (
		run_id TEXT NOT NULL,
		service TEXT NOT NULL,
		indicator TEXT NOT NULL,
		scope TEXT NOT NULL,
		avg REAL NOT NULL,
		std REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timings (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		layer TEXT NOT NULL,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trained_configurations (
		training_id TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		series TEXT NOT NULL,
		layer TEXT NOT NULL,
		category TEXT NOT NULL,
		parameters TEXT NOT NULL,
		metric_score REAL NOT NULL,
		reputation_score REAL NOT NULL,
		usable BOOLEAN NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// SQLStore reads experiment runs from and writes training results to a SQL
// database. Supported drivers are "sqlite" and "postgres".
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenSQLStore connects to the database and verifies connectivity.
func OpenSQLStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single writer keeps sqlite away from SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// NewSQLStore wraps an existing connection.
func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger}
}

// Migrate creates missing tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	StartedAt string `db:"started_at"`
}

// ListRuns returns every stored run ordered by start time.
func (s *SQLStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, started_at FROM runs ORDER BY started_at, id`); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]RunSummary, 0, len(rows))
	for _, row := range rows {
		started, err := utils.ParseTimestamp(row.StartedAt)
		if err != nil {
			s.logger.Warn("run with unparsable start time", slog.String("run", row.ID), slog.Any("error", err))
		}
		runs = append(runs, RunSummary{ID: row.ID, Name: row.Name, StartedAt: started})
	}
	return runs, nil
}

// LoadRun returns every record of a run.
func (s *SQLStore) LoadRun(ctx context.Context, id string) (RunRecord, error) {
	var run runRow
	err := s.db.GetContext(ctx, &run, s.db.Rebind(`SELECT id, name, started_at FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("load run %s: %w", id, err)
	}

	rec := RunRecord{ID: run.ID, Name: run.Name}
	queries := []struct {
		dest  any
		query string
	}{
		{&rec.Observations, `SELECT ts, indicator, layer, category, value FROM observations WHERE run_id = ? ORDER BY ts, indicator, category`},
		{&rec.Calls, `SELECT service, start_ts, end_ts, response_code FROM service_calls WHERE run_id = ? ORDER BY start_ts, service`},
		{&rec.Injections, `SELECT ts, description, duration_seconds FROM injections WHERE run_id = ? ORDER BY ts`},
		{&rec.Stats, `SELECT service, indicator, scope, avg, std FROM service_stats WHERE run_id = ? ORDER BY service, indicator, scope`},
		{&rec.Timings, `SELECT kind, layer, value FROM timings WHERE run_id = ? ORDER BY kind, layer`},
	}
	for _, q := range queries {
		if err := s.db.SelectContext(ctx, q.dest, s.db.Rebind(q.query), id); err != nil {
			return RunRecord{}, fmt.Errorf("load run %s: %w", id, err)
		}
	}
	return rec, nil
}

// SaveRun stores a run and all of its records in one transaction, replacing
// any previous copy.
func (s *SQLStore) SaveRun(ctx context.Context, rec RunRecord, startedAt time.Time) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"observations", "service_calls", "injections", "service_stats", "timings", "runs"} {
		column := "run_id"
		if table == "runs" {
			column = "id"
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, column)), rec.ID); err != nil {
			return fmt.Errorf("save run %s: %w", rec.ID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO runs (id, name, started_at) VALUES (?, ?, ?)`),
		rec.ID, rec.Name, startedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}

	for _, o := range rec.Observations {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO observations (run_id, ts, indicator, layer, category, value) VALUES (?, ?, ?, ?, ?, ?)`),
			rec.ID, o.Timestamp, o.Indicator, o.Layer, o.Category, o.Value); err != nil {
			return fmt.Errorf("save observations: %w", err)
		}
	}
	for _, c := range rec.Calls {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO service_calls (run_id, service, start_ts, end_ts, response_code) VALUES (?, ?, ?, ?, ?)`),
			rec.ID, c.Service, c.Start, c.End, c.ResponseCode); err != nil {
			return fmt.Errorf("save calls: %w", err)
		}
	}
	for _, inj := range rec.Injections {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO injections (run_id, ts, description, duration_seconds) VALUES (?, ?, ?, ?)`),
			rec.ID, inj.Timestamp, inj.Description, inj.DurationSeconds); err != nil {
			return fmt.Errorf("save injections: %w", err)
		}
	}
	for _, st := range rec.Stats {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO service_stats (run_id, service, indicator, scope, avg, std) VALUES (?, ?, ?, ?, ?, ?)`),
			rec.ID, st.Service, st.Indicator, st.Scope, st.Avg, st.Std); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
	}
	for _, tm := range rec.Timings {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO timings (run_id, kind, layer, value) VALUES (?, ?, ?, ?)`),
			rec.ID, tm.Kind, tm.Layer, tm.Value); err != nil {
			return fmt.Errorf("save timings: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

type trainedRow struct {
	TrainedRecord
	CreatedAtText string `db:"created_at_text"`
}

// StoreTrained persists the trained configurations of one training run.
func (s *SQLStore) StoreTrained(ctx context.Context, records []TrainedRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store trained: %w", err)
	}
	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO trained_configurations
			(training_id, algorithm, series, layer, category, parameters, metric_score, reputation_score, usable, created_at)
			VALUES (:training_id, :algorithm, :series, :layer, :category, :parameters, :metric_score, :reputation_score, :usable, :created_at_text)`,
			trainedRow{TrainedRecord: r, CreatedAtText: created.UTC().Format(time.RFC3339Nano)})
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store trained: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store trained: %w", err)
	}
	s.logger.Debug("stored trained configurations", slog.Int("count", len(records)))
	return nil
}

// ListTrained returns the trained configurations of one training run.
func (s *SQLStore) ListTrained(ctx context.Context, trainingID string) ([]TrainedRecord, error) {
	var rows []struct {
		TrainingID      string  `db:"training_id"`
		Algorithm       string  `db:"algorithm"`
		Series          string  `db:"series"`
		Layer           string  `db:"layer"`
		Category        string  `db:"category"`
		Parameters      string  `db:"parameters"`
		MetricScore     float64 `db:"metric_score"`
		ReputationScore float64 `db:"reputation_score"`
		Usable          bool    `db:"usable"`
		CreatedAt       string  `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT training_id, algorithm, series, layer, category, parameters,
		metric_score, reputation_score, usable, created_at
		FROM trained_configurations WHERE training_id = ? ORDER BY layer, algorithm, series, category`), trainingID)
	if err != nil {
		return nil, fmt.Errorf("list trained: %w", err)
	}
	out := make([]TrainedRecord, 0, len(rows))
	for _, row := range rows {
		created, _ := utils.ParseTimestamp(row.CreatedAt)
		out = append(out, TrainedRecord{
			TrainingID:      row.TrainingID,
			Algorithm:       row.Algorithm,
			Series:          row.Series,
			Layer:           row.Layer,
			Category:        row.Category,
			Parameters:      row.Parameters,
			MetricScore:     row.MetricScore,
			ReputationScore: row.ReputationScore,
			Usable:          row.Usable,
			CreatedAt:       created,
		})
	}
	return out, nil
}
