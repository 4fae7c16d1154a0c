package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridpilot/gridpilot/pkg/cmd"
	"github.com/gridpilot/gridpilot/pkg/eventbus"
	"github.com/gridpilot/gridpilot/pkg/otelhelper"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/protocol"
	"github.com/gridpilot/gridpilot/pkg/registry"
	"github.com/gridpilot/gridpilot/pkg/resolver"
	"github.com/gridpilot/gridpilot/pkg/scheduler"
	"github.com/gridpilot/gridpilot/pkg/sources/queue"
	"github.com/gridpilot/gridpilot/pkg/sources/schedule"
)

// Runner wires the scheduler, the submission sources and the API into one
// process. Control operations act on in-memory engine state, so everything
// runs alongside the manager.
type Runner struct {
	logger      *slog.Logger
	manager     *scheduler.Manager
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	sources     []protocol.Source
	apiPort     int
}

func NewRunner(ctx context.Context, runnerID string, logger *slog.Logger, command *cli.Command) (*Runner, error) {
	capacities, err := parseCapacities(command.StringSlice("resource"))
	if err != nil {
		return nil, err
	}

	store := cmd.NewPersistence(command.String("database-url"))
	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	reg := cmd.NewRegistry(logger, cmd.RegistryOptions{
		EnableScriptSteps: command.Bool("enable-script-steps"),
	})
	credentialVault := cmd.NewVault(command.String("vault"))

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "gridpilot-runner")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	manager := scheduler.NewManager(scheduler.ManagerConfig{
		RunnerID:    runnerID,
		Capacities:  capacities,
		Registry:    reg,
		Resolver:    resolver.New(credentialVault),
		Persistence: store,
		EventBus:    eventBus,
		Logger:      logger,
		Tracer:      tracer,
	})

	sources, err := buildSources(command, logger)
	if err != nil {
		return nil, err
	}

	return &Runner{
		logger:      logger,
		manager:     manager,
		persistence: store,
		registry:    reg,
		eventBus:    eventBus,
		sources:     sources,
		apiPort:     command.Int("port"),
	}, nil
}

// Start runs until ctx is cancelled, then drains active engines before
// closing the event bus and the store.
func (r *Runner) Start(ctx context.Context) error {
	r.manager.Start(ctx)

	submit := protocol.SubmitFunc(r.manager.Submit)
	for _, source := range r.sources {
		if err := source.Start(ctx, submit); err != nil {
			return fmt.Errorf("failed to start submission source: %w", err)
		}
	}

	api := NewAPI(r.logger, r.manager, r.persistence, r.registry)

	go func() {
		if err := api.Start(r.apiPort); err != nil {
			r.logger.ErrorContext(ctx, "API server stopped", "error", err)
		}
	}()

	r.logger.InfoContext(ctx, "GridPilot Runner started", "api_port", r.apiPort)

	<-ctx.Done()

	r.logger.Info("Shutting down, waiting for active executions")

	stopCtx := context.Background()
	for _, source := range r.sources {
		if err := source.Stop(stopCtx); err != nil {
			r.logger.Error("Failed to stop submission source", "error", err)
		}
	}

	r.manager.Wait()

	if err := r.eventBus.Close(); err != nil {
		r.logger.Error("Failed to close event bus", "error", err)
	}

	if err := r.persistence.Close(stopCtx); err != nil {
		r.logger.Error("Failed to close persistence", "error", err)
	}

	return nil
}

// parseCapacities turns repeated class=count flags into the limiter's
// capacity table. Unlisted classes stay unconstrained.
func parseCapacities(raw []string) (map[string]int, error) {
	capacities := make(map[string]int, len(raw))

	for _, entry := range raw {
		class, countStr, ok := strings.Cut(entry, "=")
		if !ok || class == "" {
			return nil, fmt.Errorf("invalid resource capacity %q, expected class=count", entry)
		}

		count, err := strconv.Atoi(countStr)
		if err != nil || count < 1 {
			return nil, fmt.Errorf("invalid resource capacity %q, count must be a positive integer", entry)
		}

		capacities[class] = count
	}

	return capacities, nil
}

func buildSources(command *cli.Command, logger *slog.Logger) ([]protocol.Source, error) {
	var sources []protocol.Source

	if queueURL := command.String("queue-url"); queueURL != "" {
		queueSource, err := queue.NewSource(queueURL, command.String("queue-name"), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue source: %w", err)
		}

		sources = append(sources, queueSource)
	}

	if rawEntries := command.StringSlice("schedule"); len(rawEntries) > 0 {
		entries := make([]schedule.Entry, 0, len(rawEntries))

		for _, raw := range rawEntries {
			expr, playbookID, ok := strings.Cut(raw, "|")
			if !ok || playbookID == "" {
				return nil, fmt.Errorf("invalid schedule %q, expected 'cron expression|playbook-id'", raw)
			}

			entries = append(entries, schedule.Entry{
				CronExpr:   strings.TrimSpace(expr),
				PlaybookID: strings.TrimSpace(playbookID),
			})
		}

		scheduleSource, err := schedule.NewSource(entries, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create schedule source: %w", err)
		}

		sources = append(sources, scheduleSource)
	}

	return sources, nil
}
