package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mobistudy/indicators-backend-go/internal/database"
	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// IndicatorRepository is the SQLite-backed indicator store
type IndicatorRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIndicatorRepository creates a new indicator repository
func NewIndicatorRepository(db *sql.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db, now: time.Now}
}

const indicatorColumns = `
	key, study_key, user_key, producer, task_ids, indicator_day,
	metrics, source_result_keys, created_at, updated_at
`

// Query returns indicators matching the filter, ordered by day then key
func (r *IndicatorRepository) Query(ctx context.Context, q models.IndicatorQuery) ([]*models.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE 1=1`
	args := []interface{}{}

	if q.StudyKey != "" {
		query += " AND study_key = ?"
		args = append(args, q.StudyKey)
	}
	if q.UserKey != "" {
		query += " AND user_key = ?"
		args = append(args, q.UserKey)
	}
	if q.Producer != "" {
		query += " AND producer = ?"
		args = append(args, q.Producer)
	}
	if len(q.TaskIDs) > 0 {
		query += " AND task_ids = ?"
		args = append(args, encodeTaskIDs(q.TaskIDs))
	}
	if q.Day != "" {
		query += " AND indicator_day = ?"
		args = append(args, q.Day)
	}
	if q.FromDay != "" {
		query += " AND indicator_day >= ?"
		args = append(args, q.FromDay)
	}
	if q.ToDay != "" {
		query += " AND indicator_day <= ?"
		args = append(args, q.ToDay)
	}

	query += " ORDER BY indicator_day, created_at, key"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	var indicators []*models.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, ind)
	}

	return indicators, rows.Err()
}

// Create inserts a new indicator together with its provenance rows
func (r *IndicatorRepository) Create(ctx context.Context, ind *models.Indicator) (*models.Indicator, error) {
	now := r.now().UTC()
	if ind.CreatedAt.IsZero() {
		ind.CreatedAt = now
	}
	ind.UpdatedAt = now

	metrics, sources, err := encodeIndicatorBody(ind)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO indicators (` + indicatorColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			ind.Key,
			ind.StudyKey,
			ind.UserKey,
			ind.Producer,
			encodeTaskIDs(ind.TaskIDs),
			ind.IndicatorDay,
			metrics,
			sources,
			toMillis(ind.CreatedAt),
			toMillis(ind.UpdatedAt),
		); err != nil {
			return fmt.Errorf("failed to create indicator: %w", err)
		}
		return insertSources(ctx, tx, ind)
	})
	if err != nil {
		return nil, err
	}

	return ind, nil
}

// Update replaces the metrics and provenance of an existing indicator
func (r *IndicatorRepository) Update(ctx context.Context, key string, ind *models.Indicator) (*models.Indicator, error) {
	ind.Key = key
	ind.UpdatedAt = r.now().UTC()

	metrics, sources, err := encodeIndicatorBody(ind)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE indicators
		SET task_ids = ?, metrics = ?, source_result_keys = ?, updated_at = ?
		WHERE key = ?
	`

	err = database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			encodeTaskIDs(ind.TaskIDs),
			metrics,
			sources,
			toMillis(ind.UpdatedAt),
			key,
		)
		if err != nil {
			return fmt.Errorf("failed to update indicator: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("indicator %s: %w", key, ErrNotFound)
		}
		return insertSources(ctx, tx, ind)
	})
	if err != nil {
		return nil, err
	}

	return ind, nil
}

func insertSources(ctx context.Context, tx *sql.Tx, ind *models.Indicator) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO indicator_sources (indicator_key, producer, result_key)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, resultKey := range ind.SourceResultKeys {
		if _, err := stmt.ExecContext(ctx, ind.Key, ind.Producer, resultKey); err != nil {
			return fmt.Errorf("failed to record source %s: %w", resultKey, err)
		}
	}
	return nil
}

func encodeIndicatorBody(ind *models.Indicator) (string, string, error) {
	metrics := ind.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	sources := ind.SourceResultKeys
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode source keys: %w", err)
	}

	return string(metricsJSON), string(sourcesJSON), nil
}

func scanIndicator(rows *sql.Rows) (*models.Indicator, error) {
	var (
		ind                  models.Indicator
		taskIDs              string
		metrics, sources     string
		createdAt, updatedAt int64
	)
	if err := rows.Scan(
		&ind.Key,
		&ind.StudyKey,
		&ind.UserKey,
		&ind.Producer,
		&taskIDs,
		&ind.IndicatorDay,
		&metrics,
		&sources,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan indicator: %w", err)
	}

	ids, err := decodeTaskIDs(taskIDs)
	if err != nil {
		return nil, err
	}
	ind.TaskIDs = ids

	if err := json.Unmarshal([]byte(metrics), &ind.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics of %s: %w", ind.Key, err)
	}
	if err := json.Unmarshal([]byte(sources), &ind.SourceResultKeys); err != nil {
		return nil, fmt.Errorf("failed to decode sources of %s: %w", ind.Key, err)
	}

	ind.CreatedAt = fromMillis(createdAt)
	ind.UpdatedAt = fromMillis(updatedAt)
	return &ind, nil
}
