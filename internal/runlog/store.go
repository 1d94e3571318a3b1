// Package runlog keeps a local SQLite ledger of training runs.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/miradorstack/mirador-churn/internal/models"
)

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("training run not found")

// Store persists models.TrainingRun rows.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory when needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("runlog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open runlog: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runlog: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			dataset_path TEXT NOT NULL,
			artifact_path TEXT NOT NULL,
			train_rows INTEGER NOT NULL,
			holdout_rows INTEGER NOT NULL,
			converged INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			report TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a completed run.
func (s *Store) Record(ctx context.Context, run models.TrainingRun) error {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_runs (id, model_id, started_at, finished_at, dataset_path, artifact_path,
			train_rows, holdout_rows, converged, iterations, accuracy, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelID,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.DatasetPath, run.ArtifactPath,
		run.TrainRows, run.HoldOutRows, run.Converged, run.Iterations,
		run.Report.Accuracy, string(report),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	query := `SELECT id, model_id, started_at, finished_at, dataset_path, artifact_path,
		train_rows, holdout_rows, converged, iterations, report
		FROM training_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (models.TrainingRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, model_id, started_at, finished_at, dataset_path, artifact_path,
		train_rows, holdout_rows, converged, iterations, report
		FROM training_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TrainingRun{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (models.TrainingRun, error) {
	var (
		run               models.TrainingRun
		started, finished string
		report            string
	)
	err := sc.Scan(&run.ID, &run.ModelID, &started, &finished, &run.DatasetPath, &run.ArtifactPath,
		&run.TrainRows, &run.HoldOutRows, &run.Converged, &run.Iterations, &report)
	if err != nil {
		return models.TrainingRun{}, err
	}
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return models.TrainingRun{}, fmt.Errorf("run %s started_at: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return models.TrainingRun{}, fmt.Errorf("run %s finished_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return models.TrainingRun{}, fmt.Errorf("run %s report: %w", run.ID, err)
	}
	return run, nil
}
