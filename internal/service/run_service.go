package service

import (
	"context"
	"fmt"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunService handles producer runs and run history
type RunService struct {
	engine *analysis.Engine
	runs   *repository.RunRepository
}

// NewRunService creates a new run service
func NewRunService(engine *analysis.Engine, runs *repository.RunRepository) *RunService {
	return &RunService{
		engine: engine,
		runs:   runs,
	}
}

// TriggerRun runs producer synchronously over the scope. Runs are bounded by
// one participant's unprocessed results, so the caller waits for the report.
func (s *RunService) TriggerRun(ctx context.Context, producer string, scope analysis.Scope) (*analysis.RunReport, error) {
	return s.engine.Run(ctx, producer, scope.StudyKey, scope.UserKey, scope.TaskIDs)
}

// GetRun retrieves a run by ID
func (s *RunService) GetRun(ctx context.Context, id int64) (*models.RunRecord, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first. It returns the filter actually applied,
// with limit and offset clamped.
func (s *RunService) ListRuns(ctx context.Context, filter models.RunFilter) ([]*models.RunRecord, models.RunFilter, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultRunLimit
	}
	if filter.Limit > maxRunLimit {
		filter.Limit = maxRunLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	runs, err := s.runs.List(ctx, filter)
	return runs, filter, err
}

// Producers lists the registered producers
func (s *RunService) Producers() []analysis.ProducerInfo {
	return s.engine.Producers()
}
