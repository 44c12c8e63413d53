package models

import (
	"time"

	"github.com/goccy/go-json"
)

// TaskResult is one participant submission as held by the raw result store.
// The aggregation engine only reads it.
type TaskResult struct {
	Key             string          `json:"key" db:"key"`
	StudyKey        string          `json:"studyKey" db:"study_key"`
	UserKey         string          `json:"userKey" db:"user_key"`
	TaskID          int             `json:"taskId" db:"task_id"`
	TaskType        string          `json:"taskType" db:"task_type"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	DeviceTimeZone  string          `json:"deviceTimeZone,omitempty" db:"device_time_zone"`
	Summary         json.RawMessage `json:"summary,omitempty" db:"summary"` // shape depends on TaskType
	AttachmentNames []string        `json:"attachmentNames,omitempty" db:"attachments"`
}

// TaskType constants
const (
	TaskTypeActivity = "activity"
	TaskTypeSleep    = "sleep"
)

// ActivitySummary is the summary carried by an activity result
type ActivitySummary struct {
	Days []ActivityDay `json:"days"`
}

// ActivityDay holds one day of device counters. Absent counters stay nil.
type ActivityDay struct {
	Date            time.Time `json:"date"`
	Steps           *float64  `json:"steps,omitempty"`
	ExerciseMinutes *float64  `json:"exerciseMinutes,omitempty"`
	ActiveMinutes   *float64  `json:"activeMinutes,omitempty"`
	Distance        *float64  `json:"distance,omitempty"` // meters
	Calories        *float64  `json:"calories,omitempty"` // kcal
}

// Metrics returns the counters that are present, keyed by metric name.
func (d ActivityDay) Metrics() map[string]float64 {
	m := make(map[string]float64, 5)
	set := func(name string, v *float64) {
		if v != nil {
			m[name] = *v
		}
	}
	set(MetricSteps, d.Steps)
	set(MetricExerciseMinutes, d.ExerciseMinutes)
	set(MetricActiveMinutes, d.ActiveMinutes)
	set(MetricDistance, d.Distance)
	set(MetricCalories, d.Calories)
	return m
}

// SleepSession is one session from a sleep attachment payload
type SleepSession struct {
	StartDate time.Time     `json:"startDate"`
	EndDate   time.Time     `json:"endDate"`
	Samples   []SleepSample `json:"samples"`
}

// SleepSample is a single quality reading within a session
type SleepSample struct {
	Time    time.Time `json:"time"`
	Quality float64   `json:"quality"`
}

// Qualities returns the quality values of the session in order.
func (s SleepSession) Qualities() []float64 {
	values := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		values[i] = sample.Quality
	}
	return values
}

// DurationMinutes is the session length, never negative.
func (s SleepSession) DurationMinutes() float64 {
	d := s.EndDate.Sub(s.StartDate).Minutes()
	if d < 0 {
		return 0
	}
	return d
}
