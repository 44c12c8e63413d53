// Package sleep aggregates sleep-session quality samples into per-day
// distribution indicators.
package sleep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/attachments"
	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/stats"
)

// ProducerName is the indicator namespace owned by this producer
const ProducerName = "sleep-daily"

func init() {
	analysis.RegisterProducer(ProducerName, func(deps analysis.Dependencies) analysis.Producer {
		return New(deps)
	})
}

// Recipe reduces sleep sessions to per-day (count, mean, variance) of sample
// quality plus duration, session count, onset and offset.
type Recipe struct {
	attachments attachments.Store
	bucketer    *daybucket.Bucketer
	maxBytes    int64
	logger      zerolog.Logger
}

// New creates the sleep producer
func New(deps analysis.Dependencies) *analysis.Pipeline {
	bucketer := deps.Bucketer
	if bucketer == nil {
		bucketer = daybucket.New("")
	}
	return analysis.NewPipeline(&Recipe{
		attachments: deps.Attachments,
		bucketer:    bucketer,
		maxBytes:    deps.Options.AttachmentMaxBytes,
		logger:      deps.Logger.With().Str("producer", ProducerName).Logger(),
	}, deps)
}

func (r *Recipe) Name() string     { return ProducerName }
func (r *Recipe) TaskType() string { return models.TaskTypeSleep }

// dayAggregate is the running state of one local day within one result
type dayAggregate struct {
	quality  stats.Summary
	duration float64
	sessions float64
	onset    int64
	offset   int64
}

func (r *Recipe) Contribute(ctx context.Context, result *models.TaskResult) ([]analysis.Contribution, error) {
	sessions, err := r.loadSessions(ctx, result)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartDate.Before(sessions[j].StartDate)
	})

	var (
		order []string
		byDay = make(map[string]*dayAggregate)
	)
	for _, s := range sessions {
		if s.StartDate.IsZero() {
			r.logger.Warn().Str("result", result.Key).Msg("Sleep session without start date")
			continue
		}

		day := r.bucketer.Key(s.StartDate, result.DeviceTimeZone)
		onset := s.StartDate.UnixMilli()
		offset := s.EndDate.UnixMilli()
		if s.EndDate.IsZero() || offset < onset {
			offset = onset
		}

		agg, ok := byDay[day]
		if !ok {
			agg = &dayAggregate{onset: onset, offset: offset}
			byDay[day] = agg
			order = append(order, day)
		}

		agg.quality = agg.quality.Merge(stats.Summarize(s.Qualities()))
		agg.duration = stats.CombineSums(agg.duration, s.DurationMinutes())
		agg.sessions = stats.CombineSums(agg.sessions, 1)
		if onset < agg.onset {
			agg.onset = onset
		}
		if offset > agg.offset {
			agg.offset = offset
		}
	}

	contributions := make([]analysis.Contribution, 0, len(order))
	for _, day := range order {
		agg := byDay[day]
		contributions = append(contributions, analysis.Contribution{
			Day: day,
			Metrics: map[string]float64{
				models.MetricSampleCount:     agg.quality.Count,
				models.MetricQualityMean:     agg.quality.Mean,
				models.MetricQualityVariance: agg.quality.Variance,
				models.MetricDurationMinutes: agg.duration,
				models.MetricSessionCount:    agg.sessions,
				models.MetricOnset:           float64(agg.onset),
				models.MetricOffset:          float64(agg.offset),
			},
		})
	}
	return contributions, nil
}

// loadSessions reads the attachments of result in order and returns the
// sessions of the first one that decodes.
func (r *Recipe) loadSessions(ctx context.Context, result *models.TaskResult) ([]models.SleepSession, error) {
	if len(result.AttachmentNames) == 0 {
		return nil, fmt.Errorf("%s has no attachment: %w", result.Key, analysis.ErrSkipNoPayload)
	}
	if r.attachments == nil {
		return nil, errors.New("no attachment store configured")
	}

	for _, name := range result.AttachmentNames {
		data, err := attachments.ReadAll(ctx, r.attachments, result.StudyKey, result.UserKey, result.TaskID, name, r.maxBytes)
		switch {
		case errors.Is(err, attachments.ErrNotFound),
			errors.Is(err, attachments.ErrInvalidPath),
			errors.Is(err, attachments.ErrTooLarge),
			errors.Is(err, attachments.ErrInvalidEncoding):
			r.logger.Warn().Err(err).Str("result", result.Key).Str("attachment", name).Msg("Unusable attachment")
			continue
		case err != nil:
			return nil, &analysis.StoreError{Op: "read attachment " + name, Err: err}
		}

		sessions, err := DecodeSessions(data)
		if err != nil {
			r.logger.Warn().Err(err).Str("result", result.Key).Str("attachment", name).Msg("Attachment is not a sleep payload")
			continue
		}
		if len(sessions) == 0 {
			continue
		}
		return sessions, nil
	}

	return nil, fmt.Errorf("%s has no sleep sessions: %w", result.Key, analysis.ErrSkipNoPayload)
}

// DecodeSessions parses a sleep payload: either an array of sessions or an
// object with a "sessions" array.
func DecodeSessions(data []byte) ([]models.SleepSession, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	var sessions []models.SleepSession
	if trimmed[0] == '{' {
		var wrapper struct {
			Sessions []models.SleepSession `json:"sessions"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode sleep payload: %w", err)
		}
		sessions = wrapper.Sessions
	} else if err := json.Unmarshal(trimmed, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sleep payload: %w", err)
	}

	return sessions, nil
}

// Merge pools the quality distributions, adds durations and session counts
// and widens onset/offset to cover both.
func (r *Recipe) Merge(existing, incoming map[string]float64) map[string]float64 {
	a := summaryOf(existing)
	b := summaryOf(incoming)
	merged := a.Merge(b)

	existing[models.MetricSampleCount] = merged.Count
	existing[models.MetricQualityMean] = merged.Mean
	existing[models.MetricQualityVariance] = merged.Variance
	existing[models.MetricDurationMinutes] = stats.CombineSums(existing[models.MetricDurationMinutes], incoming[models.MetricDurationMinutes])
	existing[models.MetricSessionCount] = stats.CombineSums(existing[models.MetricSessionCount], incoming[models.MetricSessionCount])
	existing[models.MetricOnset] = widen(existing, incoming, models.MetricOnset, math.Min)
	existing[models.MetricOffset] = widen(existing, incoming, models.MetricOffset, math.Max)

	return existing
}

func summaryOf(m map[string]float64) stats.Summary {
	return stats.Summary{
		Count:    m[models.MetricSampleCount],
		Mean:     m[models.MetricQualityMean],
		Variance: m[models.MetricQualityVariance],
	}
}

func widen(existing, incoming map[string]float64, name string, pick func(a, b float64) float64) float64 {
	a, okA := existing[name]
	b, okB := incoming[name]
	switch {
	case okA && okB:
		return pick(a, b)
	case okB:
		return b
	default:
		return a
	}
}
