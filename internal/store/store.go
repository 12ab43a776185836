// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/oddball/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound reports a missing training run.
var ErrNotFound = errors.New("not found")

// Store wraps SQLite access for training runs and decisions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			model TEXT NOT NULL,
			device INTEGER NOT NULL,
			training_class INTEGER NOT NULL,
			sequence TEXT NOT NULL,
			samples INTEGER NOT NULL,
			features INTEGER NOT NULL,
			cv_folds INTEGER,
			cv_accuracy_mean REAL,
			cv_accuracy_std REAL,
			cv_f1_mean REAL,
			cv_f1_std REAL,
			cv_error TEXT NOT NULL,
			eval_accuracy REAL NOT NULL,
			eval_f1 REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS training_run_folds (
			run_id TEXT NOT NULL,
			fold INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			f1 REAL NOT NULL,
			PRIMARY KEY (run_id, fold)
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			class INTEGER NOT NULL,
			code INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS decision_scores (
			decision_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			code INTEGER NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (decision_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_ended_at ON training_runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run_id ON decisions(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a completed training run and its cross-validation folds.
func (s *Store) InsertRun(ctx context.Context, run model.TrainingRun) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var folds sql.NullInt64
	var accMean, accStd, f1Mean, f1Std sql.NullFloat64
	if run.CV != nil {
		folds = sql.NullInt64{Int64: int64(run.CV.Folds), Valid: true}
		accMean = sql.NullFloat64{Float64: run.CV.AccuracyMean, Valid: true}
		accStd = sql.NullFloat64{Float64: run.CV.AccuracyStd, Valid: true}
		f1Mean = sql.NullFloat64{Float64: run.CV.F1Mean, Valid: true}
		f1Std = sql.NullFloat64{Float64: run.CV.F1Std, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO training_runs (id, started_at, ended_at, model, device, training_class, sequence, samples, features,
			cv_folds, cv_accuracy_mean, cv_accuracy_std, cv_f1_mean, cv_f1_std, cv_error, eval_accuracy, eval_f1)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.Format(time.RFC3339Nano),
		run.EndedAt.Format(time.RFC3339Nano),
		run.Model,
		run.Device,
		run.TrainingClass,
		joinInts(run.Sequence),
		run.Samples,
		run.Features,
		folds, accMean, accStd, f1Mean, f1Std,
		run.CVError,
		run.EvalAccuracy,
		run.EvalF1,
	)
	if err != nil {
		return err
	}

	if run.CV != nil && len(run.CV.Accuracy) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO training_run_folds (run_id, fold, accuracy, f1) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, acc := range run.CV.Accuracy {
			var f1 float64
			if i < len(run.CV.F1) {
				f1 = run.CV.F1[i]
			}
			if _, err := stmt.ExecContext(ctx, run.ID, i, acc, f1); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

const runColumns = `id, started_at, ended_at, model, device, training_class, sequence, samples, features,
	cv_folds, cv_accuracy_mean, cv_accuracy_std, cv_f1_mean, cv_f1_std, cv_error, eval_accuracy, eval_f1`

// GetRun returns the run whose id starts with prefix. An ambiguous prefix
// is an error.
func (s *Store) GetRun(ctx context.Context, prefix string) (model.TrainingRun, error) {
	runs, err := s.queryRuns(ctx, `SELECT `+runColumns+` FROM training_runs
		WHERE id LIKE ? || '%' ORDER BY ended_at DESC LIMIT 2`, prefix)
	if err != nil {
		return model.TrainingRun{}, err
	}
	switch len(runs) {
	case 0:
		return model.TrainingRun{}, fmt.Errorf("training run %q: %w", prefix, ErrNotFound)
	case 1:
	default:
		return model.TrainingRun{}, fmt.Errorf("training run prefix %q is ambiguous", prefix)
	}
	run := runs[0]
	if run.CV != nil {
		if err := s.loadFolds(ctx, &run); err != nil {
			return model.TrainingRun{}, err
		}
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM training_runs ORDER BY ended_at DESC LIMIT ?`, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]model.TrainingRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.TrainingRun
	for rows.Next() {
		var run model.TrainingRun
		var startedAt, endedAt, seq string
		var folds sql.NullInt64
		var accMean, accStd, f1Mean, f1Std sql.NullFloat64
		if err := rows.Scan(&run.ID, &startedAt, &endedAt, &run.Model, &run.Device, &run.TrainingClass, &seq,
			&run.Samples, &run.Features, &folds, &accMean, &accStd, &f1Mean, &f1Std,
			&run.CVError, &run.EvalAccuracy, &run.EvalF1); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		if run.Sequence, err = splitInts(seq); err != nil {
			return nil, err
		}
		if folds.Valid {
			run.CV = &model.CVSummary{
				Folds:        int(folds.Int64),
				AccuracyMean: accMean.Float64,
				AccuracyStd:  accStd.Float64,
				F1Mean:       f1Mean.Float64,
				F1Std:        f1Std.Float64,
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) loadFolds(ctx context.Context, run *model.TrainingRun) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT accuracy, f1 FROM training_run_folds WHERE run_id = ? ORDER BY fold ASC`, run.ID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var acc, f1 float64
		if err := rows.Scan(&acc, &f1); err != nil {
			return err
		}
		run.CV.Accuracy = append(run.CV.Accuracy, acc)
		run.CV.F1 = append(run.CV.F1, f1)
	}
	return rows.Err()
}

// InsertDecision stores a decision made with the model of a training run.
func (s *Store) InsertDecision(ctx context.Context, runID string, createdAt time.Time, d model.Decision) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO decisions (run_id, created_at, class, code) VALUES (?, ?, ?, ?)`,
		runID, createdAt.Format(time.RFC3339Nano), d.Class, d.Code)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(d.Sequence) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO decision_scores (decision_id, position, code, score) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, code := range d.Sequence {
			if _, err := stmt.ExecContext(ctx, id, i, code, d.Scores[code]); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListDecisions returns the decisions of a run in the order they were made.
// An empty runID lists decisions of every run.
func (s *Store) ListDecisions(ctx context.Context, runID string) ([]model.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.run_id, d.created_at, d.class, d.code, ds.code, ds.score
		FROM decisions d
		LEFT JOIN decision_scores ds ON ds.decision_id = d.id
		WHERE (? = '' OR d.run_id = ?)
		ORDER BY d.id ASC, ds.position ASC`, runID, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.DecisionRecord
	for rows.Next() {
		var rec model.DecisionRecord
		var createdAt string
		var code sql.NullInt64
		var score sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.RunID, &createdAt, &rec.Decision.Class, &rec.Decision.Code, &code, &score); err != nil {
			return nil, err
		}
		if n := len(result); n == 0 || result[n-1].ID != rec.ID {
			parsed, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, err
			}
			rec.CreatedAt = parsed
			rec.Decision.Scores = map[int]float64{}
			result = append(result, rec)
		}
		if code.Valid {
			last := &result[len(result)-1]
			last.Decision.Sequence = append(last.Decision.Sequence, int(code.Int64))
			last.Decision.Scores[int(code.Int64)] = score.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid sequence %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
