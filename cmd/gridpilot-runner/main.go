package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/gridpilot/gridpilot/pkg/log"
)

const defaultPort = 9090

func main() {
	cmd := &cli.Command{
		Name:                  "gridpilot-runner",
		EnableShellCompletion: true,
		Usage:                 "Run playbooks with priority scheduling and resource limits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "runner-id",
				Aliases: []string{"id"},
				Usage:   "Custom runner ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("RUNNER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "resource",
				Usage:   "Resource class capacity as class=count, repeatable (e.g. --resource gateway=2)",
				Sources: cli.EnvVars("RESOURCE_CAPACITIES"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Credential vault spec (env://PREFIX)",
				Value:   "",
				Sources: cli.EnvVars("VAULT_SPEC"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Redis URL for the submission queue source (disabled if empty)",
				Value:   "",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-name",
				Usage:   "Redis list the submission queue source drains",
				Value:   "gridpilot:submissions",
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
			&cli.StringSliceFlag{
				Name:    "schedule",
				Usage:   "Scheduled submission as 'cron expression|playbook-id', repeatable",
				Sources: cli.EnvVars("SCHEDULES"),
			},
			&cli.BoolFlag{
				Name:    "enable-script-steps",
				Usage:   "Register the untrusted script step handler",
				Value:   false,
				Sources: cli.EnvVars("ENABLE_SCRIPT_STEPS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing (exports via OTLP/HTTP)",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			runnerID := command.String("runner-id")
			if runnerID == "" {
				runnerID = "runner-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("gridpilot-runner").With("runner_id", runnerID)

			logger.InfoContext(ctx, "Initializing GridPilot Runner")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, err := NewRunner(ctx, runnerID, logger, command)
			if err != nil {
				return err
			}

			return runner.Start(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
