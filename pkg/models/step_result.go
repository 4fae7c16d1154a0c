package models

import "time"

// StepStatus is the outcome of a single step within a run.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records the outcome of one step. Appended to the execution's
// result sequence and never mutated afterwards.
type StepResult struct {
	StepID     string         `json:"step_id"`
	StepUID    string         `json:"step_uid"`
	StepType   string         `json:"step_type"`
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
