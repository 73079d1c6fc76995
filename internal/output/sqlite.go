package output

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sweeps (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	base_seed   TEXT NOT NULL,
	readout     TEXT NOT NULL,
	skipped     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cells (
	sweep_id          TEXT NOT NULL REFERENCES sweeps(id),
	subqueues         INTEGER NOT NULL,
	samples           INTEGER NOT NULL,
	ops               INTEGER NOT NULL,
	prefill           INTEGER NOT NULL,
	heuristic         TEXT NOT NULL,
	runs              INTEGER NOT NULL,
	readout_value     REAL NOT NULL,
	mean              REAL NOT NULL,
	std_dev           REAL NOT NULL,
	p50               INTEGER NOT NULL,
	p90               INTEGER NOT NULL,
	p99               INTEGER NOT NULL,
	worst_one_percent INTEGER NOT NULL,
	max               INTEGER NOT NULL,
	dequeues          INTEGER NOT NULL,
	fallbacks         INTEGER NOT NULL,
	PRIMARY KEY (sweep_id, heuristic, subqueues, prefill, ops)
);
CREATE TABLE IF NOT EXISTS failures (
	sweep_id   TEXT NOT NULL REFERENCES sweeps(id),
	subqueues  INTEGER NOT NULL,
	ops        INTEGER NOT NULL,
	prefill    INTEGER NOT NULL,
	heuristic  TEXT NOT NULL,
	repetition INTEGER NOT NULL,
	seed       TEXT NOT NULL,
	error      TEXT NOT NULL
);
`

// SQLiteSink appends reports to a SQLite database so sweeps from many
// invocations can be queried together.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Save stores the report in a single transaction.
func (s *SQLiteSink) Save(ctx context.Context, r *Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Seeds are full uint64s, which do not fit SQLite's signed INTEGER.
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sweeps (id, mode, created_at, base_seed, readout, skipped) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.CreatedAt.UTC().Format(time.RFC3339Nano), fmt.Sprint(r.BaseSeed), string(r.Readout), r.Skipped,
	); err != nil {
		return fmt.Errorf("insert sweep: %w", err)
	}

	cellStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (sweep_id, subqueues, samples, ops, prefill, heuristic, runs,
			readout_value, mean, std_dev, p50, p90, p99, worst_one_percent, max, dequeues, fallbacks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cellStmt.Close()
	for _, row := range r.Rows {
		if _, err = cellStmt.ExecContext(ctx,
			r.ID, row.Subqueues, row.Samples, row.Ops, row.Prefill, string(row.Heuristic), row.Runs,
			row.ReadoutValue, row.Mean, row.StdDev, row.P50, row.P90, row.P99, row.WorstOnePct,
			int64(row.Max), row.Dequeues, row.Fallbacks,
		); err != nil {
			return fmt.Errorf("insert cell {%d %d %d %s}: %w", row.Subqueues, row.Ops, row.Prefill, row.Heuristic, err)
		}
	}

	failStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (sweep_id, subqueues, ops, prefill, heuristic, repetition, seed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer failStmt.Close()
	for _, f := range r.Failures {
		if _, err = failStmt.ExecContext(ctx,
			r.ID, f.Subqueues, f.Ops, f.Prefill, string(f.Heuristic), f.Repetition, fmt.Sprint(f.Seed), f.Error,
		); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	return tx.Commit()
}

// CellCount returns how many cells are stored for a sweep id.
func (s *SQLiteSink) CellCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cells WHERE sweep_id = ?`, id).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
