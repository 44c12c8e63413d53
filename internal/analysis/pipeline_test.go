package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobistudy/indicators-backend-go/internal/analysis/analysistest"
	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// countRecipe contributes a fixed counter to fixed days for every result
type countRecipe struct {
	days []string
}

func (r *countRecipe) Name() string     { return "count-daily" }
func (r *countRecipe) TaskType() string { return models.TaskTypeActivity }

func (r *countRecipe) Contribute(_ context.Context, _ *models.TaskResult) ([]Contribution, error) {
	out := make([]Contribution, 0, len(r.days))
	for _, d := range r.days {
		out = append(out, Contribution{Day: d, Metrics: map[string]float64{"n": 1}})
	}
	return out, nil
}

func (r *countRecipe) Merge(existing, incoming map[string]float64) map[string]float64 {
	for k, v := range incoming {
		existing[k] += v
	}
	return existing
}

// redeliveringResults always reports the same keys as unprocessed, as an
// at-least-once source would after a crash.
type redeliveringResults struct {
	ResultStore
	keys []string
}

func (r *redeliveringResults) FindUnprocessed(context.Context, string, string, string, []int) ([]string, error) {
	return r.keys, nil
}

// failingDayIndicators fails Create for one day
type failingDayIndicators struct {
	IndicatorStore
	day string
}

func (f *failingDayIndicators) Create(ctx context.Context, ind *models.Indicator) (*models.Indicator, error) {
	if ind.IndicatorDay == f.day {
		return nil, errors.New("disk full")
	}
	return f.IndicatorStore.Create(ctx, ind)
}

var testScope = Scope{StudyKey: "s1", UserKey: "u1", TaskIDs: []int{1}}

func addActivity(t *testing.T, env *analysistest.Env, key string) {
	env.AddResult(t, &models.TaskResult{
		Key: key, StudyKey: testScope.StudyKey, UserKey: testScope.UserKey,
		TaskID: 1, TaskType: models.TaskTypeActivity,
	})
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		ok    bool
	}{
		{"complete", Scope{StudyKey: "s", UserKey: "u", TaskIDs: []int{1}}, true},
		{"missing study", Scope{UserKey: "u", TaskIDs: []int{1}}, false},
		{"blank user", Scope{StudyKey: "s", UserKey: "  ", TaskIDs: []int{1}}, false},
		{"no tasks", Scope{StudyKey: "s", UserKey: "u"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidScope)
			}
		})
	}
}

func TestDuplicateSource_SkipsMergeByDefault(t *testing.T) {
	env := analysistest.New(t)
	addActivity(t, env, "r1")
	recipe := &countRecipe{days: []string{"2024-01-01"}}

	p := NewPipeline(recipe, Dependencies{Results: env.Results, Indicators: env.Indicators, Logger: zerolog.Nop()})
	_, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)

	p.results = &redeliveringResults{ResultStore: env.Results, keys: []string{"r1"}}
	tally, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Duplicates)
	assert.Zero(t, tally.Merged)

	inds := env.IndicatorsFor(t, "s1", "u1", "count-daily")
	require.Len(t, inds, 1)
	assert.Equal(t, 1.0, inds[0].Metrics["n"])
	assert.Equal(t, []string{"r1"}, inds[0].SourceResultKeys)
}

func TestDuplicateSource_RemergeWhenEnabled(t *testing.T) {
	env := analysistest.New(t)
	addActivity(t, env, "r1")
	recipe := &countRecipe{days: []string{"2024-01-01"}}

	p := NewPipeline(recipe, Dependencies{
		Results:    env.Results,
		Indicators: env.Indicators,
		Logger:     zerolog.Nop(),
		Options:    PipelineOptions{RemergeDuplicates: true},
	})
	_, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)

	p.results = &redeliveringResults{ResultStore: env.Results, keys: []string{"r1"}}
	tally, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Duplicates)
	assert.Equal(t, 1, tally.Merged)

	inds := env.IndicatorsFor(t, "s1", "u1", "count-daily")
	require.Len(t, inds, 1)
	assert.Equal(t, 2.0, inds[0].Metrics["n"])
	// Provenance never holds the key twice.
	assert.Equal(t, []string{"r1"}, inds[0].SourceResultKeys)
}

func TestDayWriteFailureDoesNotAbortOtherDays(t *testing.T) {
	env := analysistest.New(t)
	addActivity(t, env, "r1")
	addActivity(t, env, "r2")
	recipe := &countRecipe{days: []string{"2024-01-01", "2024-01-02"}}

	p := NewPipeline(recipe, Dependencies{
		Results:    env.Results,
		Indicators: &failingDayIndicators{IndicatorStore: env.Indicators, day: "2024-01-01"},
		Logger:     zerolog.Nop(),
	})
	tally, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Found)
	assert.Equal(t, 2, tally.Failed)
	assert.Equal(t, 2, tally.WriteErrors)

	inds := env.IndicatorsFor(t, "s1", "u1", "count-daily")
	require.Len(t, inds, 1)
	assert.Equal(t, "2024-01-02", inds[0].IndicatorDay)
	assert.Equal(t, 2.0, inds[0].Metrics["n"])
	assert.Equal(t, []string{"r1", "r2"}, inds[0].SourceResultKeys)
}

func TestPartlyWrittenResultIsRetried(t *testing.T) {
	ctx := context.Background()
	env := analysistest.New(t)
	addActivity(t, env, "r1")
	recipe := &countRecipe{days: []string{"2024-01-01", "2024-01-02"}}

	failing := NewPipeline(recipe, Dependencies{
		Results:    env.Results,
		Indicators: &failingDayIndicators{IndicatorStore: env.Indicators, day: "2024-01-01"},
		Logger:     zerolog.Nop(),
	})
	tally, err := failing.FindAndProcess(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 1, tally.Created)

	healthy := NewPipeline(recipe, Dependencies{
		Results:    env.Results,
		Indicators: env.Indicators,
		Logger:     zerolog.Nop(),
	})
	tally, err = healthy.FindAndProcess(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Found, "result with a missing day is listed again")
	assert.Equal(t, 1, tally.Processed)
	assert.Equal(t, 1, tally.Created)
	assert.Equal(t, 1, tally.Duplicates, "the day written before is not merged twice")

	inds := env.IndicatorsFor(t, "s1", "u1", "count-daily")
	require.Len(t, inds, 2)
	for _, ind := range inds {
		assert.Equal(t, 1.0, ind.Metrics["n"], ind.IndicatorDay)
		assert.Equal(t, []string{"r1"}, ind.SourceResultKeys)
	}

	tally, err = healthy.FindAndProcess(ctx, testScope)
	require.NoError(t, err)
	assert.Zero(t, tally.Found, "fully written result is not listed again")
}

func TestMissingResultIsSkipped(t *testing.T) {
	env := analysistest.New(t)
	addActivity(t, env, "r1")

	p := NewPipeline(&countRecipe{days: []string{"2024-01-01"}}, Dependencies{
		Results:    &redeliveringResults{ResultStore: env.Results, keys: []string{"gone", "r1"}},
		Indicators: env.Indicators,
		Logger:     zerolog.Nop(),
	})
	tally, err := p.FindAndProcess(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Skipped)
	assert.Equal(t, 1, tally.Processed)
}

func TestMultipleRecordsForOneDayAreEachMerged(t *testing.T) {
	env := analysistest.New(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		_, err := env.Indicators.Create(ctx, &models.Indicator{
			Key: key, StudyKey: "s1", UserKey: "u1", Producer: "count-daily",
			TaskIDs: []int{1}, IndicatorDay: "2024-01-01",
			Metrics: map[string]float64{"n": 10},
		})
		require.NoError(t, err)
	}
	addActivity(t, env, "r1")

	p := NewPipeline(&countRecipe{days: []string{"2024-01-01"}}, Dependencies{Results: env.Results, Indicators: env.Indicators, Logger: zerolog.Nop()})
	tally, err := p.FindAndProcess(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Merged)

	for _, ind := range env.IndicatorsFor(t, "s1", "u1", "count-daily") {
		assert.Equal(t, 11.0, ind.Metrics["n"])
		assert.Equal(t, []string{"r1"}, ind.SourceResultKeys)
	}
}

func TestUnionTaskIDs(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, unionTaskIDs([]int{5, 1}, []int{2, 1}))
	assert.Equal(t, []int{}, unionTaskIDs(nil, nil))
}
