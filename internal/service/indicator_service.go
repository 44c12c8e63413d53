package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
)

// IndicatorService handles indicator reads
type IndicatorService struct {
	repo *repository.IndicatorRepository
}

// NewIndicatorService creates a new indicator service
func NewIndicatorService(repo *repository.IndicatorRepository) *IndicatorService {
	return &IndicatorService{repo: repo}
}

// Query validates day filters and returns matching indicators. A study key
// is required so a read never scans every study.
func (s *IndicatorService) Query(ctx context.Context, q models.IndicatorQuery) ([]*models.Indicator, error) {
	if q.StudyKey == "" {
		return nil, fmt.Errorf("%w: studyKey is required", ErrInvalidQuery)
	}
	for _, day := range []string{q.Day, q.FromDay, q.ToDay} {
		if day == "" {
			continue
		}
		if _, err := time.Parse(daybucket.Layout, day); err != nil {
			return nil, fmt.Errorf("%w: day %q is not YYYY-MM-DD", ErrInvalidQuery, day)
		}
	}

	indicators, err := s.repo.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if indicators == nil {
		indicators = []*models.Indicator{}
	}
	return indicators, nil
}
