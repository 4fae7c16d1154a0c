package models

import "time"

// ExecutionStatus represents the lifecycle state of a playbook run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCancelled, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// Execution is one run of a playbook. Parameters are fixed at submission;
// Variables are written by steps through the set-variable side channel and
// read by later steps.
type Execution struct {
	ID               string                             `json:"id"`
	PlaybookID       string                             `json:"playbook_id"`
	Status           ExecutionStatus                    `json:"status"`
	Priority         int                                `json:"priority"`
	Parameters       map[string]any                     `json:"parameters,omitempty"`
	Variables        map[string]any                     `json:"variables,omitempty"`
	StepResults      []StepResult                       `json:"step_results,omitempty"`
	CurrentStep      int                                `json:"current_step"`
	TimeoutOverrides map[TimeoutCategory]time.Duration  `json:"timeout_overrides,omitempty"`
	SubmittedAt      time.Time                          `json:"submitted_at"`
	StartedAt        *time.Time                         `json:"started_at,omitempty"`
	FinishedAt       *time.Time                         `json:"finished_at,omitempty"`
}
