package delay

import (
	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

func NewFactory() *Factory {
	return &Factory{}
}

type Factory struct{}

func (*Factory) ID() string {
	return "delay"
}

func (*Factory) Component() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:            "delay",
		Name:            "Delay",
		Description:     "Waits for a number of seconds, checking for cancellation between increments",
		Domain:          models.DomainUtility,
		TimeoutCategory: models.TimeoutCategorySlow,
		Schema: &models.JSONSchema{
			Type: "object",
			Properties: map[string]*models.Property{
				"seconds": {
					Type:        "number",
					Description: "How long to wait, in seconds",
				},
			},
			Required: []string{"seconds"},
		},
	}
}

func (f *Factory) Create(config map[string]any) (protocol.StepHandler, error) {
	return &Handler{}, nil
}
