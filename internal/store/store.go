// Package store persists recognition runs to SQLite: one row per run, a
// summary per batch and the monthly totals of every batch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iwvelando/revenue-recognition/internal/logging"
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"github.com/iwvelando/revenue-recognition/pkg/mathutil"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned when the store holds no runs yet.
var ErrNoRuns = errors.New("no runs stored")

// Store is a SQLite backed run store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Run describes one stored run.
type Run struct {
	ID        int64
	CreatedAt time.Time
	TaxRate   float64
	Batches   []BatchSummary
}

// BatchSummary is the stored summary of one batch.
type BatchSummary struct {
	Key        string
	Records    int
	Allocated  int
	Flagged    int
	Skipped    int
	Unbalanced int
	Empty      bool
}

// MonthlyTotal is the revenue recognized for one batch in one month.
type MonthlyTotal struct {
	BatchKey string
	Month    revenue.MonthKey
	Total    float64
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	logger = logging.OrNop(logger)

	if dir := filepath.Dir(path); dir != "." && !inMemory(path) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the pragma.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	logger.Debug("run store opened",
		zap.String("op", "store.Open"),
		zap.String("path", path),
	)

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun stores the results of one run and returns its id. Non-finite
// monthly totals are not stored.
func (s *Store) SaveRun(ctx context.Context, taxRate float64, results []recognition.Result) (runID int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, tax_rate, batch_count) VALUES (?, ?, ?)`,
		s.now().UTC().Format(time.RFC3339Nano), taxRate, len(results))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}

	skippedTotals := 0
	for position, result := range results {
		sum := result.Summary
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO batch_summaries (run_id, position, batch_key, records, allocated, flagged, skipped, unbalanced, empty)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, position, result.Key, sum.Records, sum.Allocated, sum.Flagged, sum.Skipped, sum.Unbalanced, sum.Empty); err != nil {
			return 0, fmt.Errorf("insert summary for batch %s: %w", result.Key, err)
		}

		for _, month := range result.Allocation.Months {
			total := result.Allocation.Totals[month]
			if !mathutil.IsFinite(total) {
				skippedTotals++
				continue
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO monthly_totals (run_id, batch_key, month, total) VALUES (?, ?, ?, ?)`,
				runID, result.Key, month.String(), total); err != nil {
				return 0, fmt.Errorf("insert %s total for batch %s: %w", month, result.Key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}

	s.logger.Info(fmt.Sprintf("stored run %d", runID),
		zap.String("op", "store.SaveRun"),
		zap.Int("batches", len(results)),
		zap.Int("nonFiniteTotals", skippedTotals),
	)
	return runID, nil
}

// LatestRunID returns the id of the most recent run, or ErrNoRuns.
func (s *Store) LatestRunID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRuns
	}
	if err != nil {
		return 0, fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}

// Run returns a stored run with its batch summaries in input order.
func (s *Store) Run(ctx context.Context, runID int64) (Run, error) {
	run := Run{ID: runID}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, tax_rate FROM runs WHERE id = ?`, runID).Scan(&createdAt, &run.TaxRate)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %d: %w", runID, ErrNoRuns)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run %d: %w", runID, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Run{}, fmt.Errorf("parse run %d timestamp: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_key, records, allocated, flagged, skipped, unbalanced, empty
		 FROM batch_summaries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return Run{}, fmt.Errorf("query batch summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.Key, &b.Records, &b.Allocated, &b.Flagged, &b.Skipped, &b.Unbalanced, &b.Empty); err != nil {
			return Run{}, fmt.Errorf("scan batch summary: %w", err)
		}
		run.Batches = append(run.Batches, b)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("read batch summaries: %w", err)
	}
	return run, nil
}

// MonthlyTotals returns the stored monthly totals of a run, batch by batch in
// input order and chronologically within a batch.
func (s *Store) MonthlyTotals(ctx context.Context, runID int64) ([]MonthlyTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.batch_key, t.month, t.total
		 FROM monthly_totals t
		 JOIN batch_summaries b ON b.run_id = t.run_id AND b.batch_key = t.batch_key
		 WHERE t.run_id = ?
		 ORDER BY b.position, t.month`, runID)
	if err != nil {
		return nil, fmt.Errorf("query monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []MonthlyTotal
	for rows.Next() {
		var (
			t     MonthlyTotal
			month string
		)
		if err := rows.Scan(&t.BatchKey, &month, &t.Total); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		if t.Month, err = revenue.ParseMonthKey(month); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read monthly totals: %w", err)
	}
	return totals, nil
}
