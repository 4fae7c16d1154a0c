// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrPlaybookNotFound indicates a playbook was not found by the given id.
	ErrPlaybookNotFound = errors.New("playbook not found")

	// ErrExecutionNotFound indicates an execution record was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrPlaybookAlreadyExists indicates a playbook with the same id exists.
	ErrPlaybookAlreadyExists = errors.New("playbook already exists")
)

// IsPlaybookNotFound checks if the error indicates a playbook was not found.
func IsPlaybookNotFound(err error) bool {
	return errors.Is(err, ErrPlaybookNotFound)
}

// IsExecutionNotFound checks if the error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// ExecutionError wraps execution-storage errors with operation context.
type ExecutionError struct {
	Op          string // operation being performed, e.g. "Save", "ByID"
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates an execution storage error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}
