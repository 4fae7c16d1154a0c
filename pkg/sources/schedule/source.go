// Package schedule provides the cron submission source: playbooks submitted
// on a fixed schedule, e.g. nightly gateway maintenance procedures.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/gridpilot/gridpilot/pkg/protocol"
)

// Entry pairs a cron expression with the playbook it submits.
type Entry struct {
	CronExpr   string
	PlaybookID string
	Parameters map[string]any
	Priority   int
}

type Source struct {
	entries []Entry
	cron    *cron.Cron
	logger  *slog.Logger
}

func NewSource(entries []Entry, logger *slog.Logger) (*Source, error) {
	source := &Source{
		entries: entries,
		logger:  logger.With("module", "schedule_source"),
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	for _, entry := range s.entries {
		if entry.PlaybookID == "" {
			return errors.New("schedule entry playbook id is required")
		}

		if _, err := cron.ParseStandard(entry.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", entry.CronExpr, err)
		}
	}

	return nil
}

func (s *Source) Start(ctx context.Context, submit protocol.SubmitFunc) error {
	s.cron = cron.New()

	for _, entry := range s.entries {
		entry := entry

		_, err := s.cron.AddFunc(entry.CronExpr, func() {
			executionID, err := submit(ctx, entry.PlaybookID, entry.Parameters, entry.Priority)
			if err != nil {
				s.logger.ErrorContext(ctx, "Scheduled submission failed",
					"playbook_id", entry.PlaybookID,
					"error", err,
				)

				return
			}

			s.logger.InfoContext(ctx, "Submitted on schedule",
				"playbook_id", entry.PlaybookID,
				"execution_id", executionID,
			)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron entry for playbook %s: %w", entry.PlaybookID, err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Schedule source started", "entries", len(s.entries))

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
