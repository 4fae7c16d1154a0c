package scheduler

import (
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestResourceLimiter_AcquireUpToCapacity(t *testing.T) {
	l := NewResourceLimiter(map[string]int{"gateway": 2}, testLogger())

	lease1, ok := l.TryAcquire("gateway", 1)
	require.True(t, ok)

	lease2, ok := l.TryAcquire("gateway", 1)
	require.True(t, ok)

	_, ok = l.TryAcquire("gateway", 1)
	assert.False(t, ok)

	assert.Equal(t, 0, l.Available("gateway"))
	assert.Equal(t, 2, l.InUse("gateway"))

	require.NoError(t, l.Release(lease1))
	require.NoError(t, l.Release(lease2))

	assert.Equal(t, 2, l.Available("gateway"))
	assert.Equal(t, 0, l.InUse("gateway"))
}

func TestResourceLimiter_ReleaseRestoresExactly(t *testing.T) {
	l := NewResourceLimiter(map[string]int{"browser": 3}, testLogger())

	lease, ok := l.TryAcquire("browser", 2)
	require.True(t, ok)
	assert.Equal(t, 1, l.Available("browser"))

	require.NoError(t, l.Release(lease))
	assert.Equal(t, 3, l.Available("browser"))
}

func TestResourceLimiter_DoubleReleaseFails(t *testing.T) {
	l := NewResourceLimiter(map[string]int{"gateway": 1}, testLogger())

	lease, ok := l.TryAcquire("gateway", 1)
	require.True(t, ok)

	require.NoError(t, l.Release(lease))

	err := l.Release(lease)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "double release")

	// The erroneous second release must not free capacity twice.
	assert.Equal(t, 1, l.Available("gateway"))
}

func TestResourceLimiter_ReleaseNilLease(t *testing.T) {
	l := NewResourceLimiter(nil, testLogger())

	assert.Error(t, l.Release(nil))
}

func TestResourceLimiter_UnconstrainedClass(t *testing.T) {
	l := NewResourceLimiter(map[string]int{"gateway": 1}, testLogger())

	// Classes without a configured capacity never refuse an acquire.
	for i := 0; i < 50; i++ {
		_, ok := l.TryAcquire("unlisted", 1)
		require.True(t, ok)
	}

	assert.Equal(t, math.MaxInt32, l.Available("unlisted"))
	assert.Equal(t, 50, l.InUse("unlisted"))

	_, constrained := l.Capacity("unlisted")
	assert.False(t, constrained)

	capacity, constrained := l.Capacity("gateway")
	assert.True(t, constrained)
	assert.Equal(t, 1, capacity)
}

func TestResourceLimiter_ZeroCountDefaultsToOne(t *testing.T) {
	l := NewResourceLimiter(map[string]int{"gateway": 1}, testLogger())

	lease, ok := l.TryAcquire("gateway", 0)
	require.True(t, ok)
	assert.Equal(t, 1, lease.Count)
	assert.Equal(t, 0, l.Available("gateway"))
}
