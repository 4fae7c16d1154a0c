// Package scheduler contains the execution scheduling core: the admission
// queue, the resource limiter, the parallel execution manager and the per-run
// execution engine.
package scheduler

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/gridpilot/gridpilot/pkg/models"
)

// QueuedExecution wraps a pending run with its admission ordering data. The
// sequence number is assigned at enqueue time and breaks priority ties in
// strict FIFO order.
type QueuedExecution struct {
	Execution *models.Execution
	Playbook  *models.Playbook
	Priority  int

	seq uint64
}

// ExecutionQueue is the priority-ordered admission queue of runs awaiting a
// resource lease. It holds no execution logic; pure ordering state.
type ExecutionQueue struct {
	mu    sync.Mutex
	seq   uint64
	items queueItems
}

func NewExecutionQueue() *ExecutionQueue {
	return &ExecutionQueue{}
}

// Enqueue inserts a run. Non-blocking; ordering is higher priority first,
// FIFO within a priority tier. An entry re-enqueued after a failed admission
// attempt keeps its original sequence number and therefore its queue slot.
func (q *ExecutionQueue) Enqueue(entry *QueuedExecution) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.seq == 0 {
		q.seq++
		entry.seq = q.seq
	}

	heap.Push(&q.items, entry)
}

// DequeueNext removes and returns the highest-priority entry for which
// admissible returns true, or nil if the queue is empty or nothing currently
// fits. Entries that do not fit stay queued in their original order.
func (q *ExecutionQueue) DequeueNext(admissible func(*QueuedExecution) bool) *QueuedExecution {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*QueuedExecution

	var picked *QueuedExecution

	for q.items.Len() > 0 {
		entry, _ := heap.Pop(&q.items).(*QueuedExecution)
		if admissible == nil || admissible(entry) {
			picked = entry

			break
		}

		skipped = append(skipped, entry)
	}

	for _, entry := range skipped {
		heap.Push(&q.items, entry)
	}

	return picked
}

// Remove cancels a still-pending entry before it was ever dispatched.
// Returns the removed entry, or nil if the id is not queued.
func (q *ExecutionQueue) Remove(executionID string) *QueuedExecution {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, entry := range q.items {
		if entry.Execution.ID == executionID {
			removed, _ := heap.Remove(&q.items, i).(*QueuedExecution)

			return removed
		}
	}

	return nil
}

func (q *ExecutionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Position reports the zero-based dispatch position of a queued run, or -1 if
// the id is not queued. Used for status reporting only.
func (q *ExecutionQueue) Position(executionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := make([]*QueuedExecution, len(q.items))
	copy(ordered, q.items)

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].before(ordered[j])
	})

	for i, entry := range ordered {
		if entry.Execution.ID == executionID {
			return i
		}
	}

	return -1
}

func (e *QueuedExecution) before(other *QueuedExecution) bool {
	if e.Priority != other.Priority {
		return e.Priority > other.Priority
	}

	return e.seq < other.seq
}

type queueItems []*QueuedExecution

func (h queueItems) Len() int            { return len(h) }
func (h queueItems) Less(i, j int) bool  { return h[i].before(h[j]) }
func (h queueItems) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *queueItems) Push(x any)         { *h = append(*h, x.(*QueuedExecution)) }

func (h *queueItems) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return item
}
