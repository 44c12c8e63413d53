package models

import "time"

// Indicator is one per-day aggregate for (study, user, producer, day)
type Indicator struct {
	Key              string             `json:"key" db:"key"`
	StudyKey         string             `json:"studyKey" db:"study_key"`
	UserKey          string             `json:"userKey" db:"user_key"`
	Producer         string             `json:"producer" db:"producer"`
	TaskIDs          []int              `json:"taskIds" db:"task_ids"`
	IndicatorDay     string             `json:"indicatorDay" db:"indicator_day"` // YYYY-MM-DD, local calendar day
	Metrics          map[string]float64 `json:"metrics" db:"metrics"`
	SourceResultKeys []string           `json:"sourceResultKeys" db:"source_result_keys"`
	CreatedAt        time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time          `json:"updatedAt" db:"updated_at"`
}

// HasSource reports whether resultKey already contributed to the indicator.
func (i *Indicator) HasSource(resultKey string) bool {
	for _, k := range i.SourceResultKeys {
		if k == resultKey {
			return true
		}
	}
	return false
}

// AddSource appends resultKey unless present. Returns false if it was present.
func (i *Indicator) AddSource(resultKey string) bool {
	if i.HasSource(resultKey) {
		return false
	}
	i.SourceResultKeys = append(i.SourceResultKeys, resultKey)
	return true
}

// IndicatorQuery filters indicators. Empty fields are not filtered on.
type IndicatorQuery struct {
	StudyKey string `form:"studyKey"`
	UserKey  string `form:"userKey"`
	Producer string `form:"producer"`
	TaskIDs  []int  `form:"taskIds"`
	Day      string `form:"day"` // YYYY-MM-DD
	FromDay  string `form:"from"`
	ToDay    string `form:"to"`
}

// Activity metric names
const (
	MetricSteps           = "steps"
	MetricExerciseMinutes = "exerciseMinutes"
	MetricActiveMinutes   = "activeMinutes"
	MetricDistance        = "distance"
	MetricCalories        = "calories"
)

// Sleep metric names
const (
	MetricSampleCount     = "sampleCount"
	MetricQualityMean     = "qualityMean"
	MetricQualityVariance = "qualityVariance"
	MetricDurationMinutes = "durationMinutes"
	MetricSessionCount    = "sessionCount"
	MetricOnset           = "onset"  // Unix epoch milliseconds
	MetricOffset          = "offset" // Unix epoch milliseconds
)
