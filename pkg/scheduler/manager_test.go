package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpilot/gridpilot/pkg/cancellation"
	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/persistence/file"
	"github.com/gridpilot/gridpilot/pkg/protocol"
	"github.com/gridpilot/gridpilot/pkg/resolver"
)

// gatedFactory blocks each dispatch until the test sends on gate, so tests
// control exactly when a run's step finishes.
func gatedFactory(id string, gate chan struct{}) *stubFactory {
	return &stubFactory{
		id: id,
		handler: &stubHandler{
			execute: func(_ context.Context, _ map[string]any, run protocol.RunContext) (map[string]any, error) {
				select {
				case <-gate:
					return map[string]any{}, nil
				case <-run.Token.Done():
					return nil, cancellation.ErrCancelled
				}
			},
		},
	}
}

func managerFixture(t *testing.T, capacities map[string]int, factories ...*stubFactory) (*Manager, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	manager := NewManager(ManagerConfig{
		RunnerID:    "runner-test",
		Capacities:  capacities,
		Registry:    testRegistry(t, factories...),
		Resolver:    resolver.New(nil),
		Persistence: store,
		Logger:      testLogger(),
	})

	return manager, store
}

func savePlaybook(t *testing.T, store persistence.Persistence, id, resourceClass, stepType string) {
	t.Helper()

	err := store.SavePlaybook(context.Background(), &models.Playbook{
		ID:            id,
		Name:          "test playbook " + id,
		ResourceClass: resourceClass,
		Steps: []models.PlaybookStep{
			step("s1", stepType, nil),
		},
	})
	require.NoError(t, err)
}

func TestManager_SubmitUnknownPlaybook(t *testing.T) {
	manager, _ := managerFixture(t, nil)

	_, err := manager.Submit(context.Background(), "pb-missing", nil, 0)

	require.Error(t, err)
	assert.True(t, persistence.IsPlaybookNotFound(err))
}

func TestManager_CapacityOneQueuesSecondRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, map[string]int{"gateway": 1}, gatedFactory("block", gate))
	savePlaybook(t, store, "pb-1", "gateway", "block")

	manager.Start(ctx)

	first, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	second, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(first)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The second run must wait for the single gateway slot.
	_, ok := manager.Engine(second)
	assert.False(t, ok)
	assert.Equal(t, 0, manager.QueuePosition(second))

	stored, err := store.ExecutionByID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, stored.Status)

	// Finish the first run; the freed slot goes to the queued one.
	gate <- struct{}{}

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(second)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	gate <- struct{}{}

	require.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(ctx, second)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, manager.Limiter().InUse("gateway"))
}

func TestManager_HigherPriorityAdmittedFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, map[string]int{"gateway": 1}, gatedFactory("block", gate))
	savePlaybook(t, store, "pb-1", "gateway", "block")

	manager.Start(ctx)

	holder, err := manager.Submit(ctx, "pb-1", nil, 50)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(holder)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	low, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	high, err := manager.Submit(ctx, "pb-1", nil, 90)
	require.NoError(t, err)

	// The later, higher-priority submission overtakes the earlier one.
	assert.Equal(t, 0, manager.QueuePosition(high))
	assert.Equal(t, 1, manager.QueuePosition(low))

	gate <- struct{}{}

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(high)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := manager.Engine(low)
	assert.False(t, ok)

	gate <- struct{}{}
	gate <- struct{}{}

	require.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(ctx, low)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_CancelQueuedRunBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, map[string]int{"gateway": 1}, gatedFactory("block", gate))
	savePlaybook(t, store, "pb-1", "gateway", "block")

	manager.Start(ctx)

	active, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	queued, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(active)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Cancel(ctx, queued))

	assert.Equal(t, -1, manager.QueuePosition(queued))

	stored, err := store.ExecutionByID(ctx, queued)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)

	// The cancelled run must never start, even once capacity frees up.
	gate <- struct{}{}

	require.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(ctx, active)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := manager.Engine(queued)
	assert.False(t, ok)
}

func TestManager_CancelActiveRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, map[string]int{"gateway": 1}, gatedFactory("block", gate))
	savePlaybook(t, store, "pb-1", "gateway", "block")

	manager.Start(ctx)

	id, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(id)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Cancel(ctx, id))

	require.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(ctx, id)

		return err == nil && stored.Status == models.ExecutionStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, manager.Limiter().InUse("gateway"))
	assert.Empty(t, manager.ActiveExecutions())
}

func TestManager_ControlOnUnknownExecution(t *testing.T) {
	manager, _ := managerFixture(t, nil)
	ctx := context.Background()

	assert.True(t, errors.Is(manager.Cancel(ctx, "exec-nope"), ErrExecutionNotActive))
	assert.True(t, errors.Is(manager.Pause(ctx, "exec-nope"), ErrExecutionNotActive))
	assert.True(t, errors.Is(manager.Resume(ctx, "exec-nope"), ErrExecutionNotActive))
	assert.True(t, errors.Is(manager.SkipStep(ctx, "exec-nope"), ErrExecutionNotActive))
}

func TestManager_PauseAndResumeActiveRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, map[string]int{"gateway": 1}, gatedFactory("block", gate))

	err := store.SavePlaybook(ctx, &models.Playbook{
		ID:            "pb-two",
		Name:          "two gated steps",
		ResourceClass: "gateway",
		Steps: []models.PlaybookStep{
			step("s1", "block", nil),
			step("s2", "block", nil),
		},
	})
	require.NoError(t, err)

	manager.Start(ctx)

	id, err := manager.Submit(ctx, "pb-two", nil, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := manager.Engine(id)

		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Pause takes effect at the boundary after the in-flight step.
	require.NoError(t, manager.Pause(ctx, id))

	gate <- struct{}{}

	engine, ok := manager.Engine(id)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return engine.ExecutionSnapshot().Status == models.ExecutionStatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Resume(ctx, id))

	gate <- struct{}{}

	require.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(ctx, id)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_UnconstrainedClassRunsInParallel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	manager, store := managerFixture(t, nil, gatedFactory("block", gate))
	savePlaybook(t, store, "pb-1", "utility", "block")

	manager.Start(ctx)

	first, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	second, err := manager.Submit(ctx, "pb-1", nil, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok1 := manager.Engine(first)
		_, ok2 := manager.Engine(second)

		return ok1 && ok2
	}, 2*time.Second, 10*time.Millisecond)

	gate <- struct{}{}
	gate <- struct{}{}

	require.Eventually(t, func() bool {
		return len(manager.ActiveExecutions()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
