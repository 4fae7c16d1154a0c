// Package events defines the typed lifecycle notifications emitted by the
// scheduler. Each state transition is published once, in order, after it has
// been applied in memory; the durable store and any dashboards consume this
// feed.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/gridpilot/gridpilot/pkg/models"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "gridpilot.executions"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionQueuedEvent    EventType = "execution.queued"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	StepStartedEvent        EventType = "execution.step.started"
	StepFinishedEvent       EventType = "execution.step.finished"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	PlaybookID  string         `json:"playbook_id"`
	RunnerID    string         `json:"runner_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID, playbookID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		PlaybookID:  playbookID,
	}
}

type ExecutionQueued struct {
	BaseEvent

	Priority      int    `json:"priority"`
	ResourceClass string `json:"resource_class"`
}

func (e ExecutionQueued) GetType() EventType { return ExecutionQueuedEvent }

type ExecutionStarted struct {
	BaseEvent

	Parameters map[string]any `json:"parameters,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionPaused struct {
	BaseEvent

	StepIndex int `json:"step_index"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	StepIndex int `json:"step_index"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCancelled struct {
	BaseEvent

	StepIndex int           `json:"step_index"`
	Duration  time.Duration `json:"duration"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type ExecutionCompleted struct {
	BaseEvent

	StepsExecuted int           `json:"steps_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	StepIndex int           `json:"step_index"`
	Error     string        `json:"error"`
	Duration  time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type StepStarted struct {
	BaseEvent

	StepID    string `json:"step_id"`
	StepType  string `json:"step_type"`
	StepIndex int    `json:"step_index"`
}

func (e StepStarted) GetType() EventType { return StepStartedEvent }

type StepFinished struct {
	BaseEvent

	StepID     string            `json:"step_id"`
	StepType   string            `json:"step_type"`
	StepIndex  int               `json:"step_index"`
	Status     models.StepStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e StepFinished) GetType() EventType { return StepFinishedEvent }
