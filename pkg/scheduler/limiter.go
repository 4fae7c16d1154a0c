package scheduler

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Lease is a granted unit of resource capacity, held exclusively by one
// active run and released exactly once on its terminal transition.
type Lease struct {
	ResourceClass string
	Count         int

	released bool
}

// ResourceLimiter tracks finite capacity per named resource class. It is
// deliberately unfair: fairness is the queue's job, the limiter only counts.
type ResourceLimiter struct {
	logger *slog.Logger

	mu       sync.Mutex
	capacity map[string]int
	inUse    map[string]int
}

// NewResourceLimiter configures the named classes. A class absent from the
// map is treated as unconstrained; usage is still tracked for reporting.
func NewResourceLimiter(capacities map[string]int, logger *slog.Logger) *ResourceLimiter {
	capacity := make(map[string]int, len(capacities))
	for class, max := range capacities {
		capacity[class] = max
	}

	return &ResourceLimiter{
		logger:   logger.With("module", "resource_limiter"),
		capacity: capacity,
		inUse:    make(map[string]int),
	}
}

// TryAcquire grants a lease immediately if capacity allows, without ever
// blocking. Waiting for capacity is the manager's job.
func (l *ResourceLimiter) TryAcquire(resourceClass string, count int) (*Lease, bool) {
	if count <= 0 {
		count = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if max, constrained := l.capacity[resourceClass]; constrained {
		if l.inUse[resourceClass]+count > max {
			return nil, false
		}
	}

	l.inUse[resourceClass] += count

	return &Lease{ResourceClass: resourceClass, Count: count}, true
}

// Release returns a lease's capacity. Double release is a programming error
// and is reported, not silently ignored.
func (l *ResourceLimiter) Release(lease *Lease) error {
	if lease == nil {
		return fmt.Errorf("release of nil lease")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if lease.released {
		err := fmt.Errorf("double release of lease for resource class %q", lease.ResourceClass)
		l.logger.Error("Lease contract violation", "error", err)

		return err
	}

	lease.released = true
	l.inUse[lease.ResourceClass] -= lease.Count

	if l.inUse[lease.ResourceClass] < 0 {
		// Cannot happen unless leases were forged; keep the counter sane.
		l.inUse[lease.ResourceClass] = 0
	}

	return nil
}

// Available reports how many units of a class are currently free.
// Unconstrained classes report a very large number.
func (l *ResourceLimiter) Available(resourceClass string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	max, constrained := l.capacity[resourceClass]
	if !constrained {
		return math.MaxInt32
	}

	return max - l.inUse[resourceClass]
}

// Capacity returns the configured capacity of a class and whether the class
// is constrained at all.
func (l *ResourceLimiter) Capacity(resourceClass string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	max, constrained := l.capacity[resourceClass]

	return max, constrained
}

// InUse reports the number of leased units for a class.
func (l *ResourceLimiter) InUse(resourceClass string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inUse[resourceClass]
}
