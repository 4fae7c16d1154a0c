package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpilot/gridpilot/pkg/events"
)

func testBus() EventBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	return NewWatermillEventBus(pubSub, pubSub)
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := testBus()
	ctx := context.Background()

	var mu sync.Mutex

	var received []*events.ExecutionQueued

	err := bus.Handle(events.ExecutionQueuedEvent, func(_ context.Context, event any) error {
		queued, ok := event.(*events.ExecutionQueued)
		require.True(t, ok)

		mu.Lock()
		defer mu.Unlock()

		received = append(received, queued)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	queued := events.ExecutionQueued{
		BaseEvent:     events.NewBaseEvent(events.ExecutionQueuedEvent, "exec-1", "pb-1"),
		Priority:      80,
		ResourceClass: "gateway",
	}

	require.NoError(t, bus.Publish(ctx, "exec-1", queued))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "exec-1", received[0].ExecutionID)
	assert.Equal(t, 80, received[0].Priority)
	assert.Equal(t, "gateway", received[0].ResourceClass)
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := testBus()
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered; publishing must not error or wedge the stream.
	event := events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, "exec-1", "pb-1"),
	}

	assert.NoError(t, bus.Publish(ctx, "exec-1", event))
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := testBus()

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
