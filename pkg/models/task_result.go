package models

import "time"

type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateStarted TaskState = "STARTED"
	TaskStateRetry   TaskState = "RETRY"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailure TaskState = "FAILURE"
)

// IsDone reports whether the task reached SUCCESS or FAILURE.
func (s TaskState) IsDone() bool {
	return s == TaskStateSuccess || s == TaskStateFailure
}

// TaskResult tracks one queued task, correlated to the execution found in its arguments.
// ParentID is the task that dispatched it, empty for tasks submitted from outside a task.
type TaskResult struct {
	TaskID      string         `json:"task_id"`
	TaskName    string         `json:"task_name"`
	ParentID    string         `json:"parent_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Args        []string       `json:"task_args"`
	Kwargs      map[string]any `json:"task_kwargs,omitempty"`
	Status      TaskState      `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
	Created     time.Time      `json:"date_created"`
	DoneAt      *time.Time     `json:"date_done,omitempty"`
}
