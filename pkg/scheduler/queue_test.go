package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpilot/gridpilot/pkg/models"
)

func queuedEntry(id string, priority int, resourceClass string) *QueuedExecution {
	return &QueuedExecution{
		Execution: &models.Execution{ID: id, PlaybookID: "pb-" + id, Priority: priority},
		Playbook:  &models.Playbook{ID: "pb-" + id, ResourceClass: resourceClass},
		Priority:  priority,
	}
}

func TestExecutionQueue_PriorityOrder(t *testing.T) {
	q := NewExecutionQueue()

	q.Enqueue(queuedEntry("low", 1, ""))
	q.Enqueue(queuedEntry("high", 90, ""))
	q.Enqueue(queuedEntry("mid", 50, ""))

	assert.Equal(t, "high", q.DequeueNext(nil).Execution.ID)
	assert.Equal(t, "mid", q.DequeueNext(nil).Execution.ID)
	assert.Equal(t, "low", q.DequeueNext(nil).Execution.ID)
	assert.Nil(t, q.DequeueNext(nil))
}

func TestExecutionQueue_FIFOWithinPriority(t *testing.T) {
	q := NewExecutionQueue()

	for i := 0; i < 5; i++ {
		q.Enqueue(queuedEntry(fmt.Sprintf("e%d", i), 10, ""))
	}

	for i := 0; i < 5; i++ {
		entry := q.DequeueNext(nil)
		require.NotNil(t, entry)
		assert.Equal(t, fmt.Sprintf("e%d", i), entry.Execution.ID)
	}
}

func TestExecutionQueue_DequeueNextSkipsInadmissible(t *testing.T) {
	q := NewExecutionQueue()

	q.Enqueue(queuedEntry("busy-high", 90, "gateway"))
	q.Enqueue(queuedEntry("free-low", 10, "browser"))

	// The gateway class has no capacity; the lower-priority browser run must
	// be admitted without disturbing the gateway run's slot.
	entry := q.DequeueNext(func(e *QueuedExecution) bool {
		return e.Playbook.ResourceClass != "gateway"
	})

	require.NotNil(t, entry)
	assert.Equal(t, "free-low", entry.Execution.ID)

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 0, q.Position("busy-high"))
}

func TestExecutionQueue_ReEnqueueKeepsSlot(t *testing.T) {
	q := NewExecutionQueue()

	q.Enqueue(queuedEntry("first", 10, ""))
	q.Enqueue(queuedEntry("second", 10, ""))

	entry := q.DequeueNext(nil)
	require.Equal(t, "first", entry.Execution.ID)

	// Admission raced a concurrent acquire; the entry goes back and still
	// dequeues before its FIFO successor.
	q.Enqueue(entry)

	assert.Equal(t, "first", q.DequeueNext(nil).Execution.ID)
	assert.Equal(t, "second", q.DequeueNext(nil).Execution.ID)
}

func TestExecutionQueue_Remove(t *testing.T) {
	q := NewExecutionQueue()

	q.Enqueue(queuedEntry("keep", 10, ""))
	q.Enqueue(queuedEntry("drop", 20, ""))

	removed := q.Remove("drop")
	require.NotNil(t, removed)
	assert.Equal(t, "drop", removed.Execution.ID)

	assert.Nil(t, q.Remove("drop"))
	assert.Nil(t, q.Remove("never-queued"))

	assert.Equal(t, "keep", q.DequeueNext(nil).Execution.ID)
}

func TestExecutionQueue_Position(t *testing.T) {
	q := NewExecutionQueue()

	q.Enqueue(queuedEntry("a", 10, ""))
	q.Enqueue(queuedEntry("b", 50, ""))
	q.Enqueue(queuedEntry("c", 10, ""))

	assert.Equal(t, 0, q.Position("b"))
	assert.Equal(t, 1, q.Position("a"))
	assert.Equal(t, 2, q.Position("c"))
	assert.Equal(t, -1, q.Position("missing"))
}
