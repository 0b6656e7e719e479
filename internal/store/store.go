// Package store mirrors trial, aggregate and match rows into a SQL database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/result"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trials (
		run_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		base VARCHAR(255) NOT NULL,
		model VARCHAR(128) NOT NULL,
		activation VARCHAR(128),
		scale DOUBLE,
		trial INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		error TEXT,
		roc DOUBLE NOT NULL,
		pr DOUBLE NOT NULL,
		accuracy DOUBLE NOT NULL,
		epochs INTEGER NOT NULL,
		started_at VARCHAR(40),
		finished_at VARCHAR(40)
	)`,
	`CREATE TABLE IF NOT EXISTS aggregates (
		run_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		trials INTEGER NOT NULL,
		roc_mean DOUBLE NOT NULL,
		roc_std DOUBLE NOT NULL,
		pr_mean DOUBLE NOT NULL,
		pr_std DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		run_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		trials INTEGER NOT NULL,
		match_any_mean DOUBLE NOT NULL,
		match_any_std DOUBLE NOT NULL,
		match_fraction_mean DOUBLE NOT NULL,
		match_fraction_std DOUBLE NOT NULL,
		coverage_mean DOUBLE NOT NULL
	)`,
}

type Store struct {
	db *sql.DB
}

// AggregateRow is one configuration's performance summary.
type AggregateRow struct {
	Name                           string
	Trials                         int
	ROCMean, ROCStd, PRMean, PRStd float64
}

// MatchRow is one configuration's filter match summary.
type MatchRow struct {
	Name                                string
	Trials                              int
	MatchAnyMean, MatchAnyStd           float64
	MatchFractionMean, MatchFractionStd float64
	CoverageMean                        float64
}

// Open connects to a results DSN (sqlite://path or mysql://dsn) and
// creates the tables when missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := config.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s store: %w", driver, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func stamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Store) InsertTrial(ctx context.Context, runID string, tr *result.TrialResult) error {
	var scale any
	if tr.Scale != nil {
		scale = *tr.Scale
	}
	var epochs int
	if tr.History != nil {
		epochs = tr.History.Epochs
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO trials
		(run_id, name, base, model, activation, scale, trial, status, error, roc, pr, accuracy, epochs, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, tr.Name, tr.Base, tr.Model, tr.Activation, scale, tr.Trial, tr.Status, tr.Error,
		tr.ROC, tr.PR, tr.Metrics.AccuracyMean, epochs, stamp(tr.StartedAt), stamp(tr.FinishedAt))
	if err != nil {
		return fmt.Errorf("inserting trial %s: %w", tr.Name, err)
	}
	return nil
}

func (s *Store) InsertAggregate(ctx context.Context, runID string, a AggregateRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO aggregates
		(run_id, name, trials, roc_mean, roc_std, pr_mean, pr_std)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, a.Name, a.Trials, a.ROCMean, a.ROCStd, a.PRMean, a.PRStd)
	if err != nil {
		return fmt.Errorf("inserting aggregate %s: %w", a.Name, err)
	}
	return nil
}

func (s *Store) InsertMatch(ctx context.Context, runID string, m MatchRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO matches
		(run_id, name, trials, match_any_mean, match_any_std, match_fraction_mean, match_fraction_std, coverage_mean)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, m.Name, m.Trials, m.MatchAnyMean, m.MatchAnyStd, m.MatchFractionMean, m.MatchFractionStd, m.CoverageMean)
	if err != nil {
		return fmt.Errorf("inserting match %s: %w", m.Name, err)
	}
	return nil
}

// Aggregates returns the aggregate rows stored for a run in insertion order.
func (s *Store) Aggregates(ctx context.Context, runID string) ([]AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, trials, roc_mean, roc_std, pr_mean, pr_std
		FROM aggregates WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()
	var out []AggregateRow
	for rows.Next() {
		var a AggregateRow
		if err := rows.Scan(&a.Name, &a.Trials, &a.ROCMean, &a.ROCStd, &a.PRMean, &a.PRStd); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TrialCount returns how many trial rows a run has.
func (s *Store) TrialCount(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting trials: %w", err)
	}
	return n, nil
}

// Matches returns the match rows stored for a run in insertion order.
func (s *Store) Matches(ctx context.Context, runID string) ([]MatchRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, trials, match_any_mean, match_any_std,
		match_fraction_mean, match_fraction_std, coverage_mean
		FROM matches WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()
	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		if err := rows.Scan(&m.Name, &m.Trials, &m.MatchAnyMean, &m.MatchAnyStd,
			&m.MatchFractionMean, &m.MatchFractionStd, &m.CoverageMean); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
