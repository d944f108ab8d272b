package types

import (
	"encoding/json"
	"time"
)

// TaskState represents the lifecycle state of an async task.
type TaskState string

// Task state constants. PENDING and STARTED are transient; SUCCESS and
// FAILURE are terminal and absorbing: once a task reaches a terminal
// state no further transition is accepted.
const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
)

// ValidTaskStates is a slice of all valid task states.
var ValidTaskStates = []TaskState{
	TaskPending,
	TaskStarted,
	TaskSuccess,
	TaskFailure,
}

// IsValidTaskState checks if the given task state is valid.
func IsValidTaskState(state TaskState) bool {
	for _, validState := range ValidTaskStates {
		if validState == state {
			return true
		}
	}
	return false
}

// Terminal reports whether the state is absorbing.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// TaskRecord is the persisted view of an async task. Callers poll it via
// the orchestrator's Status and Result operations.
type TaskRecord struct {
	ID    string    `json:"id"` // UUID assigned at submission
	Kind  string    `json:"kind"`
	State TaskState `json:"state"`

	// Progress metadata, meaningful while STARTED. Stage is a short
	// human-readable label; Percent is 0-100.
	Stage   string `json:"stage,omitempty"`
	Percent int    `json:"percent"`

	// Params is the submission payload, opaque to the orchestrator.
	Params json.RawMessage `json:"params,omitempty"`

	// Result is set on SUCCESS; Error is set on FAILURE.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
