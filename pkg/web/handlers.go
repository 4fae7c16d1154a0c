// Package web provides the HTTP handlers for playbook and execution endpoints.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/registry"
	"github.com/gridpilot/gridpilot/pkg/services"
)

type APIHandlers struct {
	playbookService  *services.Playbook
	executionService *services.Execution
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	playbookService *services.Playbook,
	executionService *services.Execution,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		playbookService:  playbookService,
		executionService: executionService,
		validator:        validator,
		registry:         registry,
	}
}

func (h *APIHandlers) GetPlaybooks(c fiber.Ctx) error {
	playbooks, err := h.playbookService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"playbooks":   playbooks,
		"total_count": len(playbooks),
	})
}

func (h *APIHandlers) GetPlaybook(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Playbook ID is required")
	}

	playbook, err := h.playbookService.ByID(c.Context(), id)
	if err != nil {
		if persistence.IsPlaybookNotFound(err) {
			return notFound(c, "Playbook not found")
		}

		return internalError(c, err)
	}

	return c.JSON(playbook)
}

func (h *APIHandlers) CreatePlaybook(c fiber.Ctx) error {
	var req CreatePlaybookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	playbook := &models.Playbook{
		Name:          req.Name,
		Description:   req.Description,
		ResourceClass: req.ResourceClass,
		Steps:         req.Steps,
		Variables:     req.Variables,
	}

	created, err := h.playbookService.Save(c.Context(), playbook)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) SubmitExecution(c fiber.Ctx) error {
	var req SubmitExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.executionService.Submit(c.Context(), services.SubmitRequest{
		PlaybookID:       req.PlaybookID,
		Parameters:       req.Parameters,
		Priority:         req.Priority,
		TimeoutOverrides: req.TimeoutOverrides,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitExecutionResponse{
		ExecutionID: executionID,
		Status:      string(models.ExecutionStatusQueued),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	status, err := h.executionService.Status(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetActiveExecutions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active": h.executionService.Active(),
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Cancel)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Pause)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.Resume)
}

func (h *APIHandlers) SkipExecutionStep(c fiber.Ctx) error {
	return h.controlExecution(c, h.executionService.SkipStep)
}

func (h *APIHandlers) controlExecution(c fiber.Ctx, control func(ctx context.Context, id string) error) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := control(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// GetStepHandlers lists the registered step types with their metadata and
// parameter schemas.
func (h *APIHandlers) GetStepHandlers(c fiber.Ctx) error {
	return c.JSON(h.registry.Components())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.playbookService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "GridPilot API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "GridPilot API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
