// Package events consumes trigger messages and turns them into producer runs.
package events

// TaskResultSubmitted announces a newly stored raw result
type TaskResultSubmitted struct {
	StudyKey  string `json:"studyKey"`
	UserKey   string `json:"userKey"`
	TaskID    int    `json:"taskId"`
	TaskType  string `json:"taskType"`
	ResultKey string `json:"resultKey,omitempty"`
}

// RunRequested asks for one producer run over a scope
type RunRequested struct {
	Producer string `json:"producer"`
	StudyKey string `json:"studyKey"`
	UserKey  string `json:"userKey"`
	TaskIDs  []int  `json:"taskIds"`
}
