package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/scheduler"
)

// ErrExecutionNotFound is returned when an execution is not found anywhere:
// not active, not queued, not in the durable store.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// ErrExecutionNotActive is returned by control operations on runs that are
// not currently live on this runner.
var ErrExecutionNotActive = scheduler.ErrExecutionNotActive

// Execution exposes run submission, status and control to the API layer. It
// fronts the manager for live state and falls back to persistence for runs
// that already finished.
type Execution struct {
	manager     *scheduler.Manager
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewExecution(manager *scheduler.Manager, p persistence.Persistence) *Execution {
	return &Execution{
		manager:     manager,
		persistence: p,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

type SubmitRequest struct {
	PlaybookID string         `json:"playbook_id" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority"    validate:"min=0,max=100"`

	// TimeoutOverrides maps a timeout category to a Go duration string,
	// e.g. {"slow": "20m"}.
	TimeoutOverrides map[string]string `json:"timeout_overrides,omitempty"`
}

type StatusResponse struct {
	Execution *models.Execution `json:"execution"`

	// QueuePosition is the run's dispatch position while queued, -1 otherwise.
	QueuePosition int `json:"queue_position"`
}

// Submit validates the request and enqueues a run, returning its id.
func (s *Execution) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", NewValidationError(err)
	}

	overrides, err := parseTimeoutOverrides(req.TimeoutOverrides)
	if err != nil {
		return "", NewValidationError(err)
	}

	return s.manager.SubmitWithOverrides(ctx, req.PlaybookID, req.Parameters, req.Priority, overrides)
}

// Status reports a run's current state. Live runs are answered from the
// engine snapshot, queued runs include their position, finished runs come
// from the store.
func (s *Execution) Status(ctx context.Context, executionID string) (*StatusResponse, error) {
	if engine, ok := s.manager.Engine(executionID); ok {
		return &StatusResponse{
			Execution:     engine.ExecutionSnapshot(),
			QueuePosition: -1,
		}, nil
	}

	execution, err := s.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		Execution:     execution,
		QueuePosition: s.manager.QueuePosition(executionID),
	}, nil
}

// Active lists the execution ids currently running on this runner.
func (s *Execution) Active() []string {
	return s.manager.ActiveExecutions()
}

func (s *Execution) Cancel(ctx context.Context, executionID string) error {
	return s.manager.Cancel(ctx, executionID)
}

func (s *Execution) Pause(ctx context.Context, executionID string) error {
	return s.manager.Pause(ctx, executionID)
}

func (s *Execution) Resume(ctx context.Context, executionID string) error {
	return s.manager.Resume(ctx, executionID)
}

func (s *Execution) SkipStep(ctx context.Context, executionID string) error {
	return s.manager.SkipStep(ctx, executionID)
}

func parseTimeoutOverrides(raw map[string]string) (map[models.TimeoutCategory]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	overrides := make(map[models.TimeoutCategory]time.Duration, len(raw))

	for name, value := range raw {
		category := models.TimeoutCategory(name)
		if !models.ValidTimeoutCategory(category) {
			return nil, fmt.Errorf("unknown timeout category %q", name)
		}

		duration, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for category %q: %w", name, err)
		}

		if duration <= 0 {
			return nil, fmt.Errorf("duration for category %q must be positive", name)
		}

		overrides[category] = duration
	}

	return overrides, nil
}
