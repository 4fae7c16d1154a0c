// Package setvariable implements the variable-write side channel step: later
// steps read the value through the {{ variable.name }} namespace.
package setvariable

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
	return "set_variable"
}

func (*Factory) Component() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:            "set_variable",
		Name:            "Set variable",
		Description:     "Writes a run-scoped variable readable by later steps",
		Domain:          models.DomainUtility,
		TimeoutCategory: models.TimeoutCategoryFast,
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"name": {
					Type:        "string",
					Description: "Variable name",
				},
				"value": {
					Description: "Variable value; any JSON type",
				},
			},
			Required: []string{"name"},
		},
	}
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return &Handler{}, nil
}

type Handler struct{}

func (h *Handler) Execute(ctx context.Context, params map[string]any, run protocol.RunContext, logger *slog.Logger) (map[string]any, error) {
	name, ok := params["name"].(string)
	if !ok || name == "" {
		return nil, protocol.NewStepExecutionError("set_variable", "'name' is required", nil)
	}

	value := params["value"]

	run.SetVariable(name, value)
	logger.DebugContext(ctx, "Variable set", "name", name)

	return map[string]any{"name": name, "value": fmt.Sprintf("%v", value)}, nil
}
