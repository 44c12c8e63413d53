package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// RunRepository handles database operations for producer run history
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, producer, study_key, user_key, task_ids, status, error_message,
	found, processed, skipped, failed, created, merged, duplicates,
	started_at, finished_at
`

// Create inserts a new run and sets its ID
func (r *RunRepository) Create(ctx context.Context, run *models.RunRecord) error {
	query := `
		INSERT INTO indicator_runs (
			producer, study_key, user_key, task_ids, status, error_message,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = toMillis(*run.FinishedAt)
	}

	result, err := r.db.ExecContext(ctx, query,
		run.Producer,
		run.StudyKey,
		run.UserKey,
		encodeTaskIDs(run.TaskIDs),
		run.Status,
		run.ErrorMessage,
		toMillis(run.StartedAt),
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// Finish stores the final status and counters of a run
func (r *RunRepository) Finish(ctx context.Context, run *models.RunRecord) error {
	query := `
		UPDATE indicator_runs
		SET status = ?, error_message = ?,
			found = ?, processed = ?, skipped = ?, failed = ?,
			created = ?, merged = ?, duplicates = ?, finished_at = ?
		WHERE id = ?
	`

	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = toMillis(*run.FinishedAt)
	}

	_, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.ErrorMessage,
		run.Found,
		run.Processed,
		run.Skipped,
		run.Failed,
		run.Created,
		run.Merged,
		run.Duplicates,
		finishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", run.ID, err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id int64) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM indicator_runs WHERE id = ?`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get run: %w", err)
		}
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return scanRun(rows)
}

// List retrieves runs with optional filters, newest first
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM indicator_runs WHERE 1=1`

	args := []interface{}{}
	if filter.Producer != "" {
		query += " AND producer = ?"
		args = append(args, filter.Producer)
	}
	if filter.StudyKey != "" {
		query += " AND study_key = ?"
		args = append(args, filter.StudyKey)
	}
	if filter.UserKey != "" {
		query += " AND user_key = ?"
		args = append(args, filter.UserKey)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*models.RunRecord, error) {
	var (
		run        models.RunRecord
		taskIDs    string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := rows.Scan(
		&run.ID,
		&run.Producer,
		&run.StudyKey,
		&run.UserKey,
		&taskIDs,
		&run.Status,
		&run.ErrorMessage,
		&run.Found,
		&run.Processed,
		&run.Skipped,
		&run.Failed,
		&run.Created,
		&run.Merged,
		&run.Duplicates,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if run.TaskIDs, err = decodeTaskIDs(taskIDs); err != nil {
		return nil, err
	}
	run.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		run.FinishedAt = &t
	}

	return &run, nil
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
