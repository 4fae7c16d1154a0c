// Package main provides the GridPilot runner: scheduler, submission sources
// and control API in a single process.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/registry"
	"github.com/gridpilot/gridpilot/pkg/scheduler"
	"github.com/gridpilot/gridpilot/pkg/services"
	"github.com/gridpilot/gridpilot/pkg/web"
)

type API struct {
	logger      *slog.Logger
	manager     *scheduler.Manager
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	manager *scheduler.Manager,
	persistence persistence.Persistence,
	registry *registry.Registry,
) *API {
	return &API{
		logger:      logger,
		manager:     manager,
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	playbookService := services.NewPlaybook(a.persistence, a.registry)
	executionService := services.NewExecution(a.manager, a.persistence)

	handlers := web.NewAPIHandlers(playbookService, executionService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("GridPilot API")
	})

	p := app.Group("/playbooks")
	p.Get("/", handlers.GetPlaybooks)
	p.Post("/", handlers.CreatePlaybook)
	p.Get("/:id", handlers.GetPlaybook)

	e := app.Group("/executions")
	e.Post("/", handlers.SubmitExecution)
	e.Get("/active", handlers.GetActiveExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/skip", handlers.SkipExecutionStep)

	app.Get("/step-handlers", handlers.GetStepHandlers)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
