package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// TaskResultRepository is the SQLite-backed raw result store
type TaskResultRepository struct {
	db *sql.DB
}

// NewTaskResultRepository creates a new task result repository
func NewTaskResultRepository(db *sql.DB) *TaskResultRepository {
	return &TaskResultRepository{db: db}
}

// Create stores a submitted result. The submission path owns this in
// production; the engine itself never writes results.
func (r *TaskResultRepository) Create(ctx context.Context, result *models.TaskResult) error {
	attachments, err := json.Marshal(result.AttachmentNames)
	if err != nil {
		return fmt.Errorf("failed to encode attachment names: %w", err)
	}
	if result.AttachmentNames == nil {
		attachments = []byte("[]")
	}

	var summary interface{}
	if len(result.Summary) > 0 {
		summary = string(result.Summary)
	}

	query := `
		INSERT INTO task_results (
			key, study_key, user_key, task_id, task_type,
			created_at, device_time_zone, summary, attachments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		result.Key,
		result.StudyKey,
		result.UserKey,
		result.TaskID,
		result.TaskType,
		toMillis(result.CreatedAt),
		result.DeviceTimeZone,
		summary,
		string(attachments),
	)
	if err != nil {
		return fmt.Errorf("failed to create task result: %w", err)
	}

	return nil
}

// Get retrieves a task result by key. Returns ErrNotFound when absent.
func (r *TaskResultRepository) Get(ctx context.Context, key string) (*models.TaskResult, error) {
	query := `
		SELECT key, study_key, user_key, task_id, task_type,
			   created_at, device_time_zone, summary, attachments
		FROM task_results
		WHERE key = ?
	`

	var (
		result      models.TaskResult
		createdAt   int64
		summary     sql.NullString
		attachments string
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&result.Key,
		&result.StudyKey,
		&result.UserKey,
		&result.TaskID,
		&result.TaskType,
		&createdAt,
		&result.DeviceTimeZone,
		&summary,
		&attachments,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task result %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task result: %w", err)
	}

	result.CreatedAt = fromMillis(createdAt)
	if summary.Valid && summary.String != "" {
		result.Summary = json.RawMessage(summary.String)
	}
	if err := json.Unmarshal([]byte(attachments), &result.AttachmentNames); err != nil {
		return nil, fmt.Errorf("failed to decode attachment names of %s: %w", key, err)
	}

	return &result, nil
}

// FindUnprocessed returns keys of results in scope not yet marked processed
// for producer, oldest first. A result attributed to only some of its days is
// still unprocessed.
func (r *TaskResultRepository) FindUnprocessed(ctx context.Context, studyKey, userKey, producer string, taskIDs []int) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT r.key
		FROM task_results r
		WHERE r.study_key = ?
			AND r.user_key = ?
			AND r.task_id IN (%s)
			AND NOT EXISTS (
				SELECT 1 FROM processed_results p
				WHERE p.producer = ? AND p.result_key = r.key
			)
		ORDER BY r.created_at, r.key
	`, placeholders(len(taskIDs)))

	args := make([]interface{}, 0, len(taskIDs)+3)
	args = append(args, studyKey, userKey)
	for _, id := range taskIDs {
		args = append(args, id)
	}
	args = append(args, producer)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find unprocessed results: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan result key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// MarkProcessed records that every contribution of resultKey has been written
// for producer. Marking twice is a no-op.
func (r *TaskResultRepository) MarkProcessed(ctx context.Context, producer, resultKey string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_results (producer, result_key, processed_at)
		VALUES (?, ?, ?)
	`, producer, resultKey, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to mark result %s processed: %w", resultKey, err)
	}
	return nil
}
