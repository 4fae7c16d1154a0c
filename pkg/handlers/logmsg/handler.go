// Package logmsg implements the structured log emission step.
package logmsg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

func NewFactory() *Factory {
	return &Factory{}
}

type Factory struct{}

func (*Factory) ID() string {
	return "log"
}

func (*Factory) Component() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:            "log",
		Name:            "Log message",
		Description:     "Emits a resolved message to the runner log",
		Domain:          models.DomainUtility,
		TimeoutCategory: models.TimeoutCategoryFast,
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"message": {
					Type:        "string",
					Description: "The message to log",
				},
				"level": {
					Type:        "string",
					Description: "Log level",
					Enum:        []any{"debug", "info", "warn", "error"},
					Default:     "info",
				},
			},
			Required: []string{"message"},
		},
	}
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return &Handler{}, nil
}

type Handler struct{}

func (h *Handler) Execute(ctx context.Context, params map[string]any, run protocol.RunContext, logger *slog.Logger) (map[string]any, error) {
	message := fmt.Sprintf("%v", params["message"])

	level, _ := params["level"].(string)

	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{"message": message}, nil
}
