// Package cancellation provides the per-run cancellation token used for
// cooperative, bounded-latency cancellation of in-flight steps.
package cancellation

import (
	"errors"
	"sync"
	"time"
)

// PollInterval is the maximum latency a well-behaved handler may add between
// cancellation checks. Handlers blocking longer than this must chunk their
// waits (see Token.Wait).
const PollInterval = 500 * time.Millisecond

// ErrCancelled is returned by handlers that abort because the run's token was
// set while they were blocking.
var ErrCancelled = errors.New("execution cancelled")

// Token is a one-shot cancellation flag with a wait primitive. One token
// exists per execution; the engine owns it, the manager only signals it.
type Token struct {
	once sync.Once
	done chan struct{}
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag. Safe to call more than once and from any goroutine.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done exposes the token as a channel for select-based waits.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks for at most d and returns true if the token was cancelled
// before the duration elapsed. A requested duration longer than PollInterval
// is still a single select here; handlers chunk long sleeps by calling Wait
// in PollInterval increments so cancellation takes effect within one interval.
func (t *Token) Wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}
