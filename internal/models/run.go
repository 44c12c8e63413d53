package models

import "time"

// RunRecord is the history row of one producer invocation
type RunRecord struct {
	ID       int64  `json:"id" db:"id"`
	Producer string `json:"producer" db:"producer"`
	StudyKey string `json:"studyKey" db:"study_key"`
	UserKey  string `json:"userKey" db:"user_key"`
	TaskIDs  []int  `json:"taskIds" db:"task_ids"`

	// Status
	Status       string `json:"status" db:"status"` // running, completed, failed, rejected
	ErrorMessage string `json:"errorMessage,omitempty" db:"error_message"`

	// Counters
	Found      int `json:"found" db:"found"`
	Processed  int `json:"processed" db:"processed"`
	Skipped    int `json:"skipped" db:"skipped"`
	Failed     int `json:"failed" db:"failed"`
	Created    int `json:"created" db:"created"`
	Merged     int `json:"merged" db:"merged"`
	Duplicates int `json:"duplicates" db:"duplicates"`

	StartedAt  time.Time  `json:"startedAt" db:"started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
}

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusRejected  = "rejected"
)

// RunFilter represents filter parameters for listing runs
type RunFilter struct {
	Producer string `form:"producer"`
	StudyKey string `form:"studyKey"`
	UserKey  string `form:"userKey"`
	Status   string `form:"status"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}
