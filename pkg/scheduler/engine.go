package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridpilot/gridpilot/pkg/cancellation"
	"github.com/gridpilot/gridpilot/pkg/eventbus"
	"github.com/gridpilot/gridpilot/pkg/events"
	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/otelhelper"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/protocol"
	"github.com/gridpilot/gridpilot/pkg/registry"
	"github.com/gridpilot/gridpilot/pkg/resolver"
)

// Engine drives one run's state machine step by step. Exactly one engine is
// ever active per execution id; the manager's active table enforces that.
//
// Pause is honored at step boundaries: a step already dispatched runs to
// completion (or to its own cancellation check point) first. Cancellation is
// cooperative; the engine sets the token and finalizes once the in-flight
// step unwinds.
type Engine struct {
	runnerID string
	playbook *models.Playbook
	registry *registry.Registry
	resolver *resolver.Resolver
	store    persistence.Persistence
	eventBus eventbus.EventBus
	logger   *slog.Logger
	tracer   trace.Tracer

	limiter *ResourceLimiter
	lease   *Lease
	token   *cancellation.Token

	mu             sync.Mutex
	execution      *models.Execution
	pauseRequested bool
	skipRequested  bool
	resumeCh       chan struct{}

	onTerminal func(*Engine)
}

type EngineConfig struct {
	RunnerID    string
	Execution   *models.Execution
	Playbook    *models.Playbook
	Registry    *registry.Registry
	Resolver    *resolver.Resolver
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Limiter     *ResourceLimiter
	Lease       *Lease
	OnTerminal  func(*Engine)
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		runnerID:   cfg.RunnerID,
		execution:  cfg.Execution,
		playbook:   cfg.Playbook,
		registry:   cfg.Registry,
		resolver:   cfg.Resolver,
		store:      cfg.Persistence,
		eventBus:   cfg.EventBus,
		limiter:    cfg.Limiter,
		lease:      cfg.Lease,
		token:      cancellation.NewToken(),
		resumeCh:   make(chan struct{}, 1),
		onTerminal: cfg.OnTerminal,
		tracer:     cfg.Tracer,
		logger: cfg.Logger.With(
			"module", "execution_engine",
			"execution_id", cfg.Execution.ID,
			"playbook_id", cfg.Playbook.ID,
		),
	}
}

func (e *Engine) ID() string {
	return e.execution.ID
}

// Token exposes the run's cancellation token for handlers and tests. The
// engine owns it; callers only signal or poll.
func (e *Engine) Token() *cancellation.Token {
	return e.token
}

// Cancel requests cooperative cancellation of the run.
func (e *Engine) Cancel() {
	e.token.Cancel()
}

// Pause requests a pause at the next step boundary.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pauseRequested = true
}

// Resume lifts a pause. Safe to call whether or not the engine has reached
// the paused state yet.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.pauseRequested = false
	e.mu.Unlock()

	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
}

// SkipStep marks the step at the next boundary decision as skipped; its
// handler is not invoked and the run proceeds.
func (e *Engine) SkipStep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.skipRequested = true
}

// ExecutionSnapshot returns a copy of the run's current state, safe to hand
// to status queries while the engine keeps mutating the original.
func (e *Engine) ExecutionSnapshot() *models.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	return copyExecution(e.execution)
}

// Run executes the playbook until a terminal state. The resource lease is
// released on every exit path, exactly once, before the manager is notified.
func (e *Engine) Run(ctx context.Context) {
	defer func() {
		if err := e.limiter.Release(e.lease); err != nil {
			e.logger.Error("Failed to release resource lease", "error", err)
		}

		if e.onTerminal != nil {
			e.onTerminal(e)
		}
	}()

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "execution.run",
			attribute.String(otelhelper.ExecutionIDKey, e.execution.ID),
			attribute.String(otelhelper.PlaybookIDKey, e.playbook.ID),
		)
		defer span.End()
	}

	started := time.Now().UTC()

	e.mu.Lock()
	e.execution.Status = models.ExecutionStatusRunning
	e.execution.StartedAt = &started
	e.mu.Unlock()

	e.persist(ctx)
	e.publish(ctx, events.ExecutionStarted{
		BaseEvent:  e.baseEvent(events.ExecutionStartedEvent),
		Parameters: e.execution.Parameters,
	})
	e.logger.InfoContext(ctx, "Execution started", "steps", len(e.playbook.Steps))

	for {
		e.mu.Lock()
		idx := e.execution.CurrentStep
		e.mu.Unlock()

		if idx >= len(e.playbook.Steps) {
			e.finalize(ctx, models.ExecutionStatusCompleted, nil)

			return
		}

		if e.token.IsCancelled() {
			e.finalize(ctx, models.ExecutionStatusCancelled, nil)

			return
		}

		if cancelled := e.awaitResumeIfPaused(ctx, idx); cancelled {
			e.finalize(ctx, models.ExecutionStatusCancelled, nil)

			return
		}

		step := e.playbook.Steps[idx]

		if e.consumeSkip() || !step.Enabled {
			e.recordSkipped(ctx, idx, step)
			e.advance(ctx, idx)

			continue
		}

		stepErr := e.executeStep(ctx, idx, step)

		if e.token.IsCancelled() {
			e.finalize(ctx, models.ExecutionStatusCancelled, nil)

			return
		}

		if stepErr != nil {
			if step.ContinueOnError {
				e.logger.WarnContext(ctx, "Step failed, continuing", "step_id", step.ID, "error", stepErr)
				e.advance(ctx, idx)

				continue
			}

			e.finalize(ctx, models.ExecutionStatusFailed, stepErr)

			return
		}

		e.advance(ctx, idx)
	}
}

// awaitResumeIfPaused parks the engine between steps while a pause is in
// effect. Returns true if the run was cancelled while paused.
func (e *Engine) awaitResumeIfPaused(ctx context.Context, idx int) bool {
	e.mu.Lock()

	if !e.pauseRequested {
		e.mu.Unlock()

		return false
	}

	e.execution.Status = models.ExecutionStatusPaused
	e.mu.Unlock()

	e.persist(ctx)
	e.publish(ctx, events.ExecutionPaused{
		BaseEvent: e.baseEvent(events.ExecutionPausedEvent),
		StepIndex: idx,
	})
	e.logger.InfoContext(ctx, "Execution paused", "step_index", idx)

	for {
		select {
		case <-e.resumeCh:
			e.mu.Lock()
			if e.pauseRequested {
				// Stale resume signal from before the last pause request.
				e.mu.Unlock()

				continue
			}

			e.execution.Status = models.ExecutionStatusRunning
			e.mu.Unlock()

			e.persist(ctx)
			e.publish(ctx, events.ExecutionResumed{
				BaseEvent: e.baseEvent(events.ExecutionResumedEvent),
				StepIndex: idx,
			})
			e.logger.InfoContext(ctx, "Execution resumed", "step_index", idx)

			return false
		case <-e.token.Done():
			return true
		}
	}
}

func (e *Engine) consumeSkip() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.skipRequested {
		return false
	}

	e.skipRequested = false

	return true
}

func (e *Engine) executeStep(ctx context.Context, idx int, step models.PlaybookStep) error {
	logger := e.logger.With("step_id", step.ID, "step_type", step.Type, "step_index", idx)

	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "execution.step",
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.StepTypeKey, step.Type),
		)
		defer span.End()
	}

	started := time.Now().UTC()

	e.publish(ctx, events.StepStarted{
		BaseEvent: e.baseEvent(events.StepStartedEvent),
		StepID:    step.ID,
		StepType:  step.Type,
		StepIndex: idx,
	})
	logger.InfoContext(ctx, "Executing step")

	result := models.StepResult{
		StepID:    step.ID,
		StepUID:   step.UID,
		StepType:  step.Type,
		StartedAt: started,
	}

	output, err := e.dispatchStep(ctx, step, logger)

	result.FinishedAt = time.Now().UTC()

	if err != nil {
		result.Status = models.StepStatusFailure
		result.Error = err.Error()
		logger.ErrorContext(ctx, "Step failed", "error", err)

		if span != nil {
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.StepIDKey, step.ID),
				attribute.String(otelhelper.StepTypeKey, step.Type),
			)
		}
	} else {
		result.Status = models.StepStatusSuccess
		result.Output = output
	}

	e.appendResult(result)
	e.persist(ctx)
	e.publish(ctx, events.StepFinished{
		BaseEvent:  e.baseEvent(events.StepFinishedEvent),
		StepID:     step.ID,
		StepType:   step.Type,
		StepIndex:  idx,
		Status:     result.Status,
		Error:      result.Error,
		DurationMs: result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	})

	return err
}

// dispatchStep resolves the step's parameters and hands them to the matching
// handler. Resolution failures surface as failed steps, never as a crash.
func (e *Engine) dispatchStep(ctx context.Context, step models.PlaybookStep, logger *slog.Logger) (map[string]any, error) {
	scope := resolver.Scope{
		Parameters: e.execution.Parameters,
		Variables:  e.variablesSnapshot(),
	}

	params, err := e.resolver.ResolveParameters(ctx, step.Parameters, scope)
	if err != nil {
		return nil, fmt.Errorf("parameter resolution for step %s: %w", step.ID, err)
	}

	component, ok := e.registry.Component(step.Type)
	if !ok {
		return nil, protocol.NewStepExecutionError(step.Type, "step type not registered", nil)
	}

	handler, err := e.registry.CreateHandler(step.Type, nil)
	if err != nil {
		return nil, protocol.NewStepExecutionError(step.Type, "handler construction failed", err)
	}

	run := protocol.RunContext{
		ExecutionID: e.execution.ID,
		PlaybookID:  e.playbook.ID,
		Token:       e.token,
		Timeout:     models.ResolveTimeout(component.TimeoutCategory, e.execution.TimeoutOverrides),
		GetVariable: e.getVariable,
		SetVariable: e.setVariable,
	}

	output, err := handler.Execute(ctx, params, run, logger)
	if err != nil {
		if errors.Is(err, cancellation.ErrCancelled) {
			return nil, err
		}

		var stepErr *protocol.StepExecutionError
		if errors.As(err, &stepErr) {
			return nil, err
		}

		return nil, protocol.NewStepExecutionError(step.Type, "handler failed", err)
	}

	return output, nil
}

func (e *Engine) recordSkipped(ctx context.Context, idx int, step models.PlaybookStep) {
	now := time.Now().UTC()

	e.appendResult(models.StepResult{
		StepID:     step.ID,
		StepUID:    step.UID,
		StepType:   step.Type,
		Status:     models.StepStatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
	})
	e.persist(ctx)
	e.publish(ctx, events.StepFinished{
		BaseEvent: e.baseEvent(events.StepFinishedEvent),
		StepID:    step.ID,
		StepType:  step.Type,
		StepIndex: idx,
		Status:    models.StepStatusSkipped,
	})
	e.logger.InfoContext(ctx, "Step skipped", "step_id", step.ID, "step_index", idx)
}

func (e *Engine) advance(ctx context.Context, idx int) {
	e.mu.Lock()
	e.execution.CurrentStep = idx + 1
	e.mu.Unlock()

	e.persist(ctx)
}

func (e *Engine) finalize(ctx context.Context, status models.ExecutionStatus, cause error) {
	finished := time.Now().UTC()

	e.mu.Lock()
	e.execution.Status = status
	e.execution.FinishedAt = &finished
	idx := e.execution.CurrentStep
	executed := len(e.execution.StepResults)

	var duration time.Duration
	if e.execution.StartedAt != nil {
		duration = finished.Sub(*e.execution.StartedAt)
	}
	e.mu.Unlock()

	e.persist(ctx)

	switch status {
	case models.ExecutionStatusCompleted:
		e.publish(ctx, events.ExecutionCompleted{
			BaseEvent:     e.baseEvent(events.ExecutionCompletedEvent),
			StepsExecuted: executed,
			Duration:      duration,
		})
		e.logger.InfoContext(ctx, "Execution completed", "steps_executed", executed, "duration", duration)
	case models.ExecutionStatusCancelled:
		e.publish(ctx, events.ExecutionCancelled{
			BaseEvent: e.baseEvent(events.ExecutionCancelledEvent),
			StepIndex: idx,
			Duration:  duration,
		})
		e.logger.InfoContext(ctx, "Execution cancelled", "step_index", idx)
	case models.ExecutionStatusFailed:
		message := ""
		if cause != nil {
			message = cause.Error()
		}

		e.publish(ctx, events.ExecutionFailed{
			BaseEvent: e.baseEvent(events.ExecutionFailedEvent),
			StepIndex: idx,
			Error:     message,
			Duration:  duration,
		})
		e.logger.ErrorContext(ctx, "Execution failed", "step_index", idx, "error", message)
	}
}

func (e *Engine) appendResult(result models.StepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.execution.StepResults = append(e.execution.StepResults, result)
}

func (e *Engine) getVariable(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, ok := e.execution.Variables[name]

	return value, ok
}

func (e *Engine) setVariable(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.execution.Variables == nil {
		e.execution.Variables = make(map[string]any)
	}

	e.execution.Variables[name] = value
}

func (e *Engine) variablesSnapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := make(map[string]any, len(e.execution.Variables))
	for k, v := range e.execution.Variables {
		snapshot[k] = v
	}

	return snapshot
}

// persist reports the current in-memory state to the durable store. Storage
// failures are logged, never allowed to crash a run.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}

	snapshot := e.ExecutionSnapshot()

	if err := e.store.SaveExecution(ctx, snapshot); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist execution state", "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, e.execution.ID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType) events.BaseEvent {
	base := events.NewBaseEvent(eventType, e.execution.ID, e.playbook.ID)
	base.RunnerID = e.runnerID

	return base
}

func copyExecution(execution *models.Execution) *models.Execution {
	snapshot := *execution

	snapshot.Parameters = copyMap(execution.Parameters)
	snapshot.Variables = copyMap(execution.Variables)

	if execution.StepResults != nil {
		snapshot.StepResults = make([]models.StepResult, len(execution.StepResults))
		copy(snapshot.StepResults, execution.StepResults)
	}

	if execution.TimeoutOverrides != nil {
		overrides := make(map[models.TimeoutCategory]time.Duration, len(execution.TimeoutOverrides))
		for k, v := range execution.TimeoutOverrides {
			overrides[k] = v
		}

		snapshot.TimeoutOverrides = overrides
	}

	return &snapshot
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
