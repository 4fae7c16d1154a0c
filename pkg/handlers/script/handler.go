// Package script implements the untrusted "run arbitrary command" escape
// hatch. It executes caller-supplied commands with full process privileges
// and is therefore registered only when the runner is started with
// --enable-script-steps; nothing in the default catalog reaches it. Its
// behavior is outside the scheduler's guarantees: a script that ignores its
// context deadline delays cancellation until it exits.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

func NewFactory() *Factory {
	return &Factory{}
}

type Factory struct{}

func (*Factory) ID() string {
	return "script"
}

func (*Factory) Component() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:            "script",
		Name:            "Script (untrusted)",
		Description:     "Runs a caller-supplied command; opt-in, full process privileges",
		Domain:          models.DomainUtility,
		TimeoutCategory: models.TimeoutCategorySlow,
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"command": {
					Type:        "string",
					Description: "Program to run",
				},
				"args": {
					Type:        "array",
					Description: "Program arguments",
					Items:       &models.Property{Type: "string"},
				},
			},
			Required: []string{"command"},
		},
	}
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return &Handler{}, nil
}

type Handler struct{}

func (h *Handler) Execute(ctx context.Context, params map[string]any, run protocol.RunContext, logger *slog.Logger) (map[string]any, error) {
	command, ok := params["command"].(string)
	if !ok || command == "" {
		return nil, protocol.NewStepExecutionError("script", "'command' is required", nil)
	}

	var args []string
	if rawArgs, ok := params["args"].([]any); ok {
		for _, arg := range rawArgs {
			args = append(args, fmt.Sprintf("%v", arg))
		}
	}

	scriptCtx, cancel := context.WithTimeout(ctx, run.Timeout)
	defer cancel()

	logger.WarnContext(ctx, "Running untrusted script step", "command", command)

	cmd := exec.CommandContext(scriptCtx, command, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, protocol.NewStepExecutionError("script", "command failed", fmt.Errorf("%w: %s", err, string(output)))
	}

	return map[string]any{
		"output":    string(output),
		"exit_code": cmd.ProcessState.ExitCode(),
	}, nil
}
