// Package analysistest wires producers to temporary SQLite stores for tests.
package analysistest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/database"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
)

// Env holds the stores of one temporary database
type Env struct {
	DB         *sql.DB
	Results    *repository.TaskResultRepository
	Indicators *repository.IndicatorRepository
	Runs       *repository.RunRepository
}

// New opens a migrated database under t.TempDir
func New(t testing.TB) *Env {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path: filepath.Join(t.TempDir(), "indicators.db"),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &Env{
		DB:         db,
		Results:    repository.NewTaskResultRepository(db),
		Indicators: repository.NewIndicatorRepository(db),
		Runs:       repository.NewRunRepository(db),
	}
}

// AddResult stores result, filling CreatedAt when unset
func (e *Env) AddResult(t testing.TB, result *models.TaskResult) {
	t.Helper()
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	if err := e.Results.Create(context.Background(), result); err != nil {
		t.Fatalf("add result %s: %v", result.Key, err)
	}
}

// MustJSON encodes v or fails the test
func MustJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	return data
}

// IndicatorsFor returns the indicators of a producer in a scope, ordered by day
func (e *Env) IndicatorsFor(t testing.TB, studyKey, userKey, producer string) []*models.Indicator {
	t.Helper()
	found, err := e.Indicators.Query(context.Background(), models.IndicatorQuery{
		StudyKey: studyKey,
		UserKey:  userKey,
		Producer: producer,
	})
	if err != nil {
		t.Fatalf("query indicators: %v", err)
	}
	return found
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
