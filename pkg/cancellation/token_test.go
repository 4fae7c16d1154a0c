package cancellation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_InitialState(t *testing.T) {
	token := NewToken()

	assert.False(t, token.IsCancelled())

	select {
	case <-token.Done():
		t.Fatal("done channel closed before cancellation")
	default:
	}
}

func TestToken_Cancel(t *testing.T) {
	token := NewToken()

	token.Cancel()

	assert.True(t, token.IsCancelled())

	select {
	case <-token.Done():
	default:
		t.Fatal("done channel not closed after cancellation")
	}
}

func TestToken_CancelIsIdempotent(t *testing.T) {
	token := NewToken()

	token.Cancel()
	token.Cancel()
	token.Cancel()

	assert.True(t, token.IsCancelled())
}

func TestToken_WaitExpires(t *testing.T) {
	token := NewToken()

	start := time.Now()
	cancelled := token.Wait(20 * time.Millisecond)

	assert.False(t, cancelled)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestToken_WaitUnblocksOnCancel(t *testing.T) {
	token := NewToken()

	go func() {
		time.Sleep(10 * time.Millisecond)
		token.Cancel()
	}()

	// A long wait must return as soon as the token is cancelled, not after
	// the full duration.
	start := time.Now()
	cancelled := token.Wait(100 * time.Second)

	require.True(t, cancelled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestToken_WaitAlreadyCancelled(t *testing.T) {
	token := NewToken()
	token.Cancel()

	assert.True(t, token.Wait(time.Hour))
}
