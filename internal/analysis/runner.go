package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/metrics"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/runguard"
)

// RunRecorder persists run history
type RunRecorder interface {
	Create(ctx context.Context, run *models.RunRecord) error
	Finish(ctx context.Context, run *models.RunRecord) error
}

// Reporter receives scope-level run failures
type Reporter interface {
	CaptureRunFailure(ctx context.Context, producer string, scope Scope, err error)
}

// RunReport describes one Engine.Run call
type RunReport struct {
	RunID      int64     `json:"runId,omitempty"`
	Producer   string    `json:"producer"`
	Scope      Scope     `json:"scope"`
	Status     string    `json:"status"`
	Tally      Tally     `json:"tally"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ProducerInfo describes a registered producer
type ProducerInfo struct {
	Name     string `json:"name"`
	TaskType string `json:"taskType"`
}

// Engine dispatches runs to producers, one sequential run per scope
type Engine struct {
	producers map[string]Producer
	guard     *runguard.Guard
	runs      RunRecorder
	reporter  Reporter
	logger    zerolog.Logger
	now       func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithRunRecorder enables run history
func WithRunRecorder(r RunRecorder) EngineOption {
	return func(e *Engine) { e.runs = r }
}

// WithReporter sends scope-level failures to r
func WithReporter(r Reporter) EngineOption {
	return func(e *Engine) { e.reporter = r }
}

// NewEngine creates an engine over producers. The guard is owned by the
// caller so several engines in one process can share it.
func NewEngine(guard *runguard.Guard, logger zerolog.Logger, producers []Producer, opts ...EngineOption) *Engine {
	e := &Engine{
		producers: make(map[string]Producer, len(producers)),
		guard:     guard,
		logger:    logger,
		now:       time.Now,
	}
	for _, p := range producers {
		e.producers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Producers lists the registered producers ordered by name
func (e *Engine) Producers() []ProducerInfo {
	infos := make([]ProducerInfo, 0, len(e.producers))
	for _, p := range e.producers {
		infos = append(infos, ProducerInfo{Name: p.Name(), TaskType: p.TaskType()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ProducersForTaskType returns the producers consuming taskType, ordered by name
func (e *Engine) ProducersForTaskType(taskType string) []string {
	var names []string
	for _, info := range e.Producers() {
		if info.TaskType == taskType {
			names = append(names, info.Name)
		}
	}
	return names
}

// Run processes every unprocessed result in scope with the named producer.
//
// Invalid arguments fail before any I/O. A run for a scope already in flight
// is rejected with a nil error and Status RunStatusRejected. Only scope-level
// failures are returned; per-result problems are counted in the report.
func (e *Engine) Run(ctx context.Context, producerName, studyKey, userKey string, taskIDs []int) (*RunReport, error) {
	producer, ok := e.producers[producerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProducer, producerName)
	}

	scope := Scope{StudyKey: studyKey, UserKey: userKey, TaskIDs: append([]int(nil), taskIDs...)}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	report := &RunReport{
		Producer:  producerName,
		Scope:     scope,
		StartedAt: e.now(),
	}

	key := runguard.ScopeKey(producerName, studyKey, userKey, taskIDs)
	if !e.guard.TryEnter(key) {
		report.Status = models.RunStatusRejected
		report.FinishedAt = report.StartedAt
		metrics.RunGuardRejections.WithLabelValues(producerName).Inc()
		metrics.RecordRun(producerName, report.Status, 0)
		e.recordRejection(ctx, report)
		return report, nil
	}
	defer e.guard.Exit(key)

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	record := e.startRecord(ctx, report)

	log := e.logger.With().
		Str("producer", producerName).
		Str("study", studyKey).
		Str("user", userKey).
		Ints("tasks", scope.TaskIDs).
		Logger()
	log.Info().Msg("Run started")

	tally, err := producer.FindAndProcess(ctx, scope)
	if tally != nil {
		report.Tally = *tally
	}
	report.FinishedAt = e.now()
	duration := report.FinishedAt.Sub(report.StartedAt)

	if err != nil {
		report.Status = models.RunStatusFailed
		log.Error().Err(err).Dur("duration", duration).Msg("Run failed")
		if e.reporter != nil {
			e.reporter.CaptureRunFailure(ctx, producerName, scope, err)
		}
	} else {
		report.Status = models.RunStatusCompleted
		log.Info().
			Int("found", report.Tally.Found).
			Int("processed", report.Tally.Processed).
			Int("skipped", report.Tally.Skipped).
			Int("failed", report.Tally.Failed).
			Int("created", report.Tally.Created).
			Int("merged", report.Tally.Merged).
			Int("duplicates", report.Tally.Duplicates).
			Dur("duration", duration).
			Msg("Run completed")
	}

	metrics.RecordRun(producerName, report.Status, duration)
	metrics.RecordResults(producerName, report.Tally.Processed, report.Tally.Skipped, report.Tally.Failed)
	metrics.RecordWrites(producerName, report.Tally.Created, report.Tally.Merged, report.Tally.Duplicates, report.Tally.WriteErrors)

	e.finishRecord(ctx, record, report, err)

	return report, err
}

// startRecord writes the running history row. History is best effort.
func (e *Engine) startRecord(ctx context.Context, report *RunReport) *models.RunRecord {
	if e.runs == nil {
		return nil
	}

	record := &models.RunRecord{
		Producer:  report.Producer,
		StudyKey:  report.Scope.StudyKey,
		UserKey:   report.Scope.UserKey,
		TaskIDs:   report.Scope.TaskIDs,
		Status:    models.RunStatusRunning,
		StartedAt: report.StartedAt,
	}
	if err := e.runs.Create(ctx, record); err != nil {
		e.logger.Warn().Err(err).Str("producer", report.Producer).Msg("Failed to record run start")
		return nil
	}
	report.RunID = record.ID
	return record
}

func (e *Engine) recordRejection(ctx context.Context, report *RunReport) {
	if e.runs == nil {
		return
	}

	finished := report.FinishedAt
	record := &models.RunRecord{
		Producer:   report.Producer,
		StudyKey:   report.Scope.StudyKey,
		UserKey:    report.Scope.UserKey,
		TaskIDs:    report.Scope.TaskIDs,
		Status:     models.RunStatusRejected,
		StartedAt:  report.StartedAt,
		FinishedAt: &finished,
	}
	if err := e.runs.Create(ctx, record); err != nil {
		e.logger.Warn().Err(err).Str("producer", report.Producer).Msg("Failed to record rejected run")
		return
	}
	report.RunID = record.ID
}

func (e *Engine) finishRecord(ctx context.Context, record *models.RunRecord, report *RunReport, runErr error) {
	if record == nil {
		return
	}

	finished := report.FinishedAt
	record.Status = report.Status
	record.Found = report.Tally.Found
	record.Processed = report.Tally.Processed
	record.Skipped = report.Tally.Skipped
	record.Failed = report.Tally.Failed
	record.Created = report.Tally.Created
	record.Merged = report.Tally.Merged
	record.Duplicates = report.Tally.Duplicates
	record.FinishedAt = &finished
	if runErr != nil {
		record.ErrorMessage = runErr.Error()
	}

	// The run context may already be cancelled; history should still land.
	if err := e.runs.Finish(context.WithoutCancel(ctx), record); err != nil {
		e.logger.Warn().Err(err).Int64("run", record.ID).Msg("Failed to record run finish")
	}
}
