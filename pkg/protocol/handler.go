// Package protocol defines the contracts between the scheduler core and the
// pluggable step handler catalogs.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cancellation"
	"github.com/gridpilot/gridpilot/pkg/models"
)

// RunContext carries the per-dispatch state a handler may consult: the run's
// cancellation token, the timeout resolved from the handler's category (with
// run-level overrides applied) and the variable side channel.
//
// Handler obligations: blocking work must be chunked so the token is checked
// at least every cancellation.PollInterval, and the handler must bound its own
// blocking operations by Timeout. The engine never preempts a handler.
type RunContext struct {
	ExecutionID string
	PlaybookID  string
	Token       *cancellation.Token
	Timeout     time.Duration

	// GetVariable and SetVariable access the run-scoped variable mapping.
	GetVariable func(name string) (any, bool)
	SetVariable func(name string, value any)
}

// StepHandler executes one typed step with fully resolved parameters.
// CPU-bound or blocking handlers run on their own goroutine per dispatch; the
// engine goroutine is dedicated to one run, so a handler only ever stalls its
// own run.
type StepHandler interface {
	Execute(ctx context.Context, params map[string]any, run RunContext, logger *slog.Logger) (map[string]any, error)
}

// StepHandlerFactory creates handler instances and describes the step type.
type StepHandlerFactory interface {
	Create(config map[string]any) (StepHandler, error)
	ID() string
	Component() *models.RegisteredComponent
}

// StepExecutionError is a handler-reported failure. It terminates the run as
// failed unless the step is marked skip-tolerant.
type StepExecutionError struct {
	StepType string
	Message  string
	Err      error
}

func (e *StepExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed: %s: %v", e.StepType, e.Message, e.Err)
	}

	return fmt.Sprintf("step %s failed: %s", e.StepType, e.Message)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// NewStepExecutionError wraps a handler failure with its step type.
func NewStepExecutionError(stepType, message string, err error) *StepExecutionError {
	return &StepExecutionError{StepType: stepType, Message: message, Err: err}
}
