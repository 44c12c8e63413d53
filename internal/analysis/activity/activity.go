// Package activity aggregates daily device activity counters into per-day
// indicators by plain summation.
package activity

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/stats"
)

// ProducerName is the indicator namespace owned by this producer
const ProducerName = "activity-daily"

func init() {
	analysis.RegisterProducer(ProducerName, func(deps analysis.Dependencies) analysis.Producer {
		return New(deps)
	})
}

// Recipe sums activity counters per local day
type Recipe struct {
	bucketer *daybucket.Bucketer
}

// New creates the activity producer
func New(deps analysis.Dependencies) *analysis.Pipeline {
	bucketer := deps.Bucketer
	if bucketer == nil {
		bucketer = daybucket.New("")
	}
	return analysis.NewPipeline(&Recipe{bucketer: bucketer}, deps)
}

func (r *Recipe) Name() string     { return ProducerName }
func (r *Recipe) TaskType() string { return models.TaskTypeActivity }

// Contribute decodes the result summary and folds entries landing on the same
// local day together, so each day gets at most one contribution per result.
func (r *Recipe) Contribute(_ context.Context, result *models.TaskResult) ([]analysis.Contribution, error) {
	if len(result.Summary) == 0 {
		return nil, fmt.Errorf("%s has no summary: %w", result.Key, analysis.ErrSkipNoPayload)
	}

	var summary models.ActivitySummary
	if err := json.Unmarshal(result.Summary, &summary); err != nil {
		return nil, fmt.Errorf("%s summary is malformed (%v): %w", result.Key, err, analysis.ErrSkipNoPayload)
	}

	var (
		order []string
		byDay = make(map[string]map[string]float64)
	)
	for _, entry := range summary.Days {
		if entry.Date.IsZero() {
			continue
		}
		day := r.bucketer.Key(entry.Date, result.DeviceTimeZone)
		acc, ok := byDay[day]
		if !ok {
			acc = make(map[string]float64)
			byDay[day] = acc
			order = append(order, day)
		}
		for name, v := range entry.Metrics() {
			acc[name] = stats.CombineSums(acc[name], v)
		}
	}

	contributions := make([]analysis.Contribution, 0, len(order))
	for _, day := range order {
		contributions = append(contributions, analysis.Contribution{Day: day, Metrics: byDay[day]})
	}
	return contributions, nil
}

// Merge adds every incoming counter to the existing one
func (r *Recipe) Merge(existing, incoming map[string]float64) map[string]float64 {
	for name, v := range incoming {
		existing[name] = stats.CombineSums(existing[name], v)
	}
	return existing
}
