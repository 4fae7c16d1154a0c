// Package queue provides the message-queue submission source: playbook-run
// requests pushed onto a redis list are drained and handed to the scheduler.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/gridpilot/gridpilot/pkg/protocol"
)

const popTimeout = 2 * time.Second

// Request is the wire form of one submission.
type Request struct {
	PlaybookID string         `json:"playbook_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority"`
}

type Source struct {
	Queue string

	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(redisURL, queue string, logger *slog.Logger) (*Source, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	source := &Source{
		Queue:  queue,
		client: redis.NewClient(opts),
		stopCh: make(chan struct{}),
		logger: logger.With("module", "queue_source", "queue", queue),
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	if s.Queue == "" {
		return errors.New("queue name is required")
	}

	return nil
}

func (s *Source) Start(ctx context.Context, submit protocol.SubmitFunc) error {
	s.logger.InfoContext(ctx, "Starting queue source")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			result, err := s.client.BRPop(ctx, popTimeout, s.Queue).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}

			if err != nil {
				if ctx.Err() != nil {
					return
				}

				s.logger.ErrorContext(ctx, "Failed to pop from queue", "error", err)

				continue
			}

			// BRPop returns [key, value].
			if len(result) != 2 {
				continue
			}

			var request Request
			if err := json.Unmarshal([]byte(result[1]), &request); err != nil {
				s.logger.ErrorContext(ctx, "Discarding malformed submission", "error", err)

				continue
			}

			executionID, err := submit(ctx, request.PlaybookID, request.Parameters, request.Priority)
			if err != nil {
				s.logger.ErrorContext(ctx, "Submission rejected",
					"playbook_id", request.PlaybookID,
					"error", err,
				)

				continue
			}

			s.logger.InfoContext(ctx, "Submitted from queue",
				"playbook_id", request.PlaybookID,
				"execution_id", executionID,
			)
		}
	}()

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	return s.client.Close()
}
