package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridpilot/gridpilot/pkg/eventbus"
	"github.com/gridpilot/gridpilot/pkg/events"
	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/registry"
	"github.com/gridpilot/gridpilot/pkg/resolver"
)

// ErrExecutionNotActive is returned by control operations when the execution
// id is not in the active-engine table: either it never existed or it already
// reached a terminal state.
var ErrExecutionNotActive = errors.New("execution not active")

// Manager is the coordination point between admission and execution. It owns
// the queue, the limiter and the active-engine table; engines own run state.
type Manager struct {
	logger   *slog.Logger
	runnerID string

	queue    *ExecutionQueue
	limiter  *ResourceLimiter
	registry *registry.Registry
	resolver *resolver.Resolver
	store    persistence.Persistence
	eventBus eventbus.EventBus
	tracer   trace.Tracer

	mu      sync.Mutex
	engines map[string]*Engine

	dispatchCh chan struct{}
	wg         sync.WaitGroup
}

type ManagerConfig struct {
	RunnerID    string
	Capacities  map[string]int
	Registry    *registry.Registry
	Resolver    *resolver.Resolver
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

func NewManager(cfg ManagerConfig) *Manager {
	runnerID := cfg.RunnerID
	if runnerID == "" {
		runnerID = fmt.Sprintf("runner-%s", uuid.New().String()[:8])
	}

	logger := cfg.Logger.With("module", "execution_manager", "runner_id", runnerID)

	return &Manager{
		logger:     logger,
		runnerID:   runnerID,
		queue:      NewExecutionQueue(),
		limiter:    NewResourceLimiter(cfg.Capacities, cfg.Logger),
		registry:   cfg.Registry,
		resolver:   cfg.Resolver,
		store:      cfg.Persistence,
		eventBus:   cfg.EventBus,
		tracer:     cfg.Tracer,
		engines:    make(map[string]*Engine),
		dispatchCh: make(chan struct{}, 1),
	}
}

// Start runs the dispatch loop until ctx is cancelled. Dispatch is triggered
// on every enqueue and on every lease release, so a freed resource is offered
// to the next queued run immediately.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.dispatchCh:
				m.dispatchPending(ctx)
			}
		}
	}()
}

// Wait blocks until the dispatch loop and every active engine have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Limiter exposes the resource limiter for capacity reporting.
func (m *Manager) Limiter() *ResourceLimiter {
	return m.limiter
}

// Submit enqueues a run of the playbook and returns its execution id
// immediately. The run is not guaranteed to start until capacity exists.
func (m *Manager) Submit(ctx context.Context, playbookID string, parameters map[string]any, priority int) (string, error) {
	return m.SubmitWithOverrides(ctx, playbookID, parameters, priority, nil)
}

// SubmitWithOverrides additionally applies per-run timeout overrides.
func (m *Manager) SubmitWithOverrides(
	ctx context.Context,
	playbookID string,
	parameters map[string]any,
	priority int,
	overrides map[models.TimeoutCategory]time.Duration,
) (string, error) {
	playbook, err := m.store.PlaybookByID(ctx, playbookID)
	if err != nil {
		return "", fmt.Errorf("fetch playbook %s: %w", playbookID, err)
	}

	if parameters == nil {
		parameters = map[string]any{}
	}

	variables := make(map[string]any, len(playbook.Variables))
	for k, v := range playbook.Variables {
		variables[k] = v
	}

	execution := &models.Execution{
		ID:               "exec-" + uuid.New().String(),
		PlaybookID:       playbook.ID,
		Status:           models.ExecutionStatusQueued,
		Priority:         priority,
		Parameters:       parameters,
		Variables:        variables,
		TimeoutOverrides: overrides,
		SubmittedAt:      time.Now().UTC(),
	}

	if err := m.store.SaveExecution(ctx, execution); err != nil {
		return "", fmt.Errorf("persist execution: %w", err)
	}

	m.queue.Enqueue(&QueuedExecution{
		Execution: execution,
		Playbook:  playbook,
		Priority:  priority,
	})

	base := events.NewBaseEvent(events.ExecutionQueuedEvent, execution.ID, playbook.ID)
	base.RunnerID = m.runnerID
	m.publish(ctx, execution.ID, events.ExecutionQueued{
		BaseEvent:     base,
		Priority:      priority,
		ResourceClass: playbook.ResourceClass,
	})

	m.logger.InfoContext(ctx, "Execution queued",
		"execution_id", execution.ID,
		"playbook_id", playbook.ID,
		"priority", priority,
		"resource_class", playbook.ResourceClass,
	)

	m.kickDispatch()

	return execution.ID, nil
}

// Engine returns the active engine for an execution id, if any. The active
// table is the single source of truth for "is this id currently live".
func (m *Manager) Engine(executionID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	engine, ok := m.engines[executionID]

	return engine, ok
}

// ActiveExecutions lists the ids currently bound to an engine.
func (m *Manager) ActiveExecutions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}

	return ids
}

// QueuePosition reports a queued run's dispatch position, -1 if not queued.
func (m *Manager) QueuePosition(executionID string) int {
	return m.queue.Position(executionID)
}

// Cancel stops a run. A still-queued run is removed before it ever starts; an
// active run is cancelled cooperatively via its token.
func (m *Manager) Cancel(ctx context.Context, executionID string) error {
	if engine, ok := m.Engine(executionID); ok {
		engine.Cancel()

		return nil
	}

	if entry := m.queue.Remove(executionID); entry != nil {
		now := time.Now().UTC()
		entry.Execution.Status = models.ExecutionStatusCancelled
		entry.Execution.FinishedAt = &now

		if err := m.store.SaveExecution(ctx, entry.Execution); err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist cancelled execution", "execution_id", executionID, "error", err)
		}

		base := events.NewBaseEvent(events.ExecutionCancelledEvent, executionID, entry.Playbook.ID)
		base.RunnerID = m.runnerID
		m.publish(ctx, executionID, events.ExecutionCancelled{BaseEvent: base})

		m.logger.InfoContext(ctx, "Queued execution cancelled before dispatch", "execution_id", executionID)

		return nil
	}

	return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
}

// Pause requests a pause of an active run at its next step boundary.
func (m *Manager) Pause(ctx context.Context, executionID string) error {
	engine, ok := m.Engine(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	engine.Pause()

	return nil
}

// Resume lifts a pause on an active run.
func (m *Manager) Resume(ctx context.Context, executionID string) error {
	engine, ok := m.Engine(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	engine.Resume()

	return nil
}

// SkipStep marks the active run's current step to be skipped without
// invoking its handler.
func (m *Manager) SkipStep(ctx context.Context, executionID string) error {
	engine, ok := m.Engine(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	engine.SkipStep()

	return nil
}

func (m *Manager) kickDispatch() {
	select {
	case m.dispatchCh <- struct{}{}:
	default:
	}
}

// dispatchPending admits queued runs while capacity lasts. The queue decides
// fairness; the limiter only answers whether a run fits right now.
func (m *Manager) dispatchPending(ctx context.Context) {
	for {
		entry := m.queue.DequeueNext(func(candidate *QueuedExecution) bool {
			return m.limiter.Available(candidate.Playbook.ResourceClass) >= 1
		})
		if entry == nil {
			return
		}

		lease, ok := m.limiter.TryAcquire(entry.Playbook.ResourceClass, 1)
		if !ok {
			// Capacity vanished between the check and the acquire; the entry
			// keeps its sequence number and thus its queue slot.
			m.queue.Enqueue(entry)

			return
		}

		engine := NewEngine(EngineConfig{
			RunnerID:    m.runnerID,
			Execution:   entry.Execution,
			Playbook:    entry.Playbook,
			Registry:    m.registry,
			Resolver:    m.resolver,
			Persistence: m.store,
			EventBus:    m.eventBus,
			Logger:      m.logger,
			Tracer:      m.tracer,
			Limiter:     m.limiter,
			Lease:       lease,
			OnTerminal:  m.handleTerminal,
		})

		m.mu.Lock()
		m.engines[engine.ID()] = engine
		m.mu.Unlock()

		m.logger.InfoContext(ctx, "Execution dispatched",
			"execution_id", engine.ID(),
			"resource_class", entry.Playbook.ResourceClass,
		)

		m.wg.Add(1)

		go func() {
			defer m.wg.Done()
			engine.Run(ctx)
		}()
	}
}

// handleTerminal runs after an engine released its lease; it removes the id
// from the active table and offers the freed capacity to the queue.
func (m *Manager) handleTerminal(engine *Engine) {
	m.mu.Lock()
	delete(m.engines, engine.ID())
	m.mu.Unlock()

	m.kickDispatch()
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.eventBus == nil {
		return
	}

	if err := m.eventBus.Publish(ctx, key, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
