// Package delay implements the cancellable-sleep step. The wait is chunked
// into cancellation.PollInterval increments so a cancel signal takes effect
// within one interval regardless of the requested duration.
package delay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridpilot/gridpilot/pkg/cancellation"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

type Handler struct{}

func (h *Handler) Execute(ctx context.Context, params map[string]any, run protocol.RunContext, logger *slog.Logger) (map[string]any, error) {
	seconds, err := secondsParam(params)
	if err != nil {
		return nil, protocol.NewStepExecutionError("delay", "invalid parameters", err)
	}

	logger.InfoContext(ctx, "Delaying", "seconds", seconds)

	remaining := time.Duration(seconds * float64(time.Second))

	for remaining > 0 {
		chunk := remaining
		if chunk > cancellation.PollInterval {
			chunk = cancellation.PollInterval
		}

		if run.Token.Wait(chunk) {
			return nil, cancellation.ErrCancelled
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		remaining -= chunk
	}

	return map[string]any{"slept_seconds": seconds}, nil
}

func secondsParam(params map[string]any) (float64, error) {
	raw, ok := params["seconds"]
	if !ok {
		return 0, fmt.Errorf("'seconds' is required")
	}

	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("'seconds' must be a number, got %T", raw)
	}
}
