package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
)

// Contribution is what one raw result adds to one local day
type Contribution struct {
	Day     string // YYYY-MM-DD
	Metrics map[string]float64
}

// Recipe is the producer-specific part of a pipeline
type Recipe interface {
	Name() string
	TaskType() string

	// Contribute reduces a result to per-day contributions, at most one per
	// day, in the order the days should be written. Returning a skip error
	// skips the result.
	Contribute(ctx context.Context, result *models.TaskResult) ([]Contribution, error)

	// Merge folds incoming into existing metrics and returns the result.
	Merge(existing, incoming map[string]float64) map[string]float64
}

// PipelineOptions tune the shared pipeline
type PipelineOptions struct {
	// RemergeDuplicates applies the numeric merge even when the result is
	// already listed as a source of the indicator. Off by default.
	RemergeDuplicates bool

	// AttachmentMaxBytes bounds a single attachment read.
	AttachmentMaxBytes int64
}

// Pipeline runs a Recipe against the result and indicator stores. It is the
// Producer implementation shared by every recipe.
type Pipeline struct {
	recipe     Recipe
	results    ResultStore
	indicators IndicatorStore
	opts       PipelineOptions
	logger     zerolog.Logger
	newKey     func() string
}

// NewPipeline creates a pipeline for recipe
func NewPipeline(recipe Recipe, deps Dependencies) *Pipeline {
	return &Pipeline{
		recipe:     recipe,
		results:    deps.Results,
		indicators: deps.Indicators,
		opts:       deps.Options,
		logger:     deps.Logger.With().Str("producer", recipe.Name()).Logger(),
		newKey:     uuid.NewString,
	}
}

// Name returns the producer name
func (p *Pipeline) Name() string {
	return p.recipe.Name()
}

// TaskType returns the task type the recipe consumes
func (p *Pipeline) TaskType() string {
	return p.recipe.TaskType()
}

// FindAndProcess processes every unprocessed result in scope sequentially.
// Only a failure to list the unprocessed results is returned; per-result and
// per-day failures are logged and counted.
func (p *Pipeline) FindAndProcess(ctx context.Context, scope Scope) (*Tally, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	keys, err := p.results.FindUnprocessed(ctx, scope.StudyKey, scope.UserKey, p.Name(), scope.TaskIDs)
	if err != nil {
		return nil, &StoreError{Op: "find unprocessed", Err: err}
	}

	tally := &Tally{Found: len(keys)}
	if len(keys) == 0 {
		return tally, nil
	}

	p.logger.Info().
		Str("study", scope.StudyKey).
		Str("user", scope.UserKey).
		Int("results", len(keys)).
		Msg("Processing unprocessed results")

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return tally, err
		}

		err := p.processResult(ctx, scope, key, tally)
		switch {
		case err == nil:
			tally.Processed++
		case IsSkippable(err):
			tally.Skipped++
			p.logger.Warn().Err(err).Str("result", key).Msg("Skipping result")
		default:
			tally.Failed++
			p.logger.Error().Err(err).Str("result", key).Msg("Failed to process result")
		}
	}

	return tally, nil
}

func (p *Pipeline) processResult(ctx context.Context, scope Scope, key string, tally *Tally) error {
	result, err := p.results.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrSkipNotFound)
	}
	if err != nil {
		return &StoreError{Op: "get result", Err: err}
	}

	if result.TaskType != p.recipe.TaskType() {
		return fmt.Errorf("%s has type %q, want %q: %w", key, result.TaskType, p.recipe.TaskType(), ErrSkipTypeMismatch)
	}

	contributions, err := p.recipe.Contribute(ctx, result)
	if err != nil {
		return err
	}
	if len(contributions) == 0 {
		return fmt.Errorf("%s: %w", key, ErrSkipNoPayload)
	}

	var dayErrs []error
	for _, c := range contributions {
		if err := p.upsertDay(ctx, scope, result.Key, c, tally); err != nil {
			tally.WriteErrors++
			p.logger.Error().
				Err(err).
				Str("result", result.Key).
				Str("day", c.Day).
				Msg("Failed to write indicator day")
			dayErrs = append(dayErrs, err)
		}
	}

	if len(dayErrs) > 0 {
		// Left unmarked so the next run retries; written days hit the
		// duplicate guard.
		return errors.Join(dayErrs...)
	}

	if err := p.results.MarkProcessed(ctx, p.Name(), result.Key); err != nil {
		return &StoreError{Op: "mark processed", Err: err}
	}
	return nil
}

// upsertDay creates the indicator for one day or merges into the existing
// ones. More than one existing record for a day is an anomaly; each is merged
// and the anomaly logged.
func (p *Pipeline) upsertDay(ctx context.Context, scope Scope, resultKey string, c Contribution, tally *Tally) error {
	existing, err := p.indicators.Query(ctx, models.IndicatorQuery{
		StudyKey: scope.StudyKey,
		UserKey:  scope.UserKey,
		Producer: p.Name(),
		Day:      c.Day,
	})
	if err != nil {
		return &StoreError{Op: "query indicators", Err: err}
	}

	if len(existing) == 0 {
		ind := &models.Indicator{
			Key:              p.newKey(),
			StudyKey:         scope.StudyKey,
			UserKey:          scope.UserKey,
			Producer:         p.Name(),
			TaskIDs:          unionTaskIDs(nil, scope.TaskIDs),
			IndicatorDay:     c.Day,
			Metrics:          copyMetrics(c.Metrics),
			SourceResultKeys: []string{resultKey},
		}
		if _, err := p.indicators.Create(ctx, ind); err != nil {
			return &StoreError{Op: "create indicator", Err: err}
		}
		tally.Created++
		return nil
	}

	if len(existing) > 1 {
		p.logger.Warn().
			Str("day", c.Day).
			Int("records", len(existing)).
			Msg("Multiple indicators for one day, merging into each")
	}

	var errs []error
	for _, ind := range existing {
		if ind.HasSource(resultKey) {
			tally.Duplicates++
			p.logger.Warn().
				Str("indicator", ind.Key).
				Str("result", resultKey).
				Str("day", c.Day).
				Bool("remerge", p.opts.RemergeDuplicates).
				Msg("Result already contributed to indicator")
			if !p.opts.RemergeDuplicates {
				continue
			}
		}

		ind.Metrics = p.recipe.Merge(copyMetrics(ind.Metrics), c.Metrics)
		ind.TaskIDs = unionTaskIDs(ind.TaskIDs, scope.TaskIDs)
		ind.AddSource(resultKey)

		if _, err := p.indicators.Update(ctx, ind.Key, ind); err != nil {
			errs = append(errs, &StoreError{Op: "update indicator " + ind.Key, Err: err})
			continue
		}
		tally.Merged++
	}

	return errors.Join(errs...)
}

func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func unionTaskIDs(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, ids := range [][]int{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
