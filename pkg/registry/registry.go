// Package registry holds the catalog of step handler factories and their
// static metadata.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.StepHandlerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.StepHandlerFactory),
	}
}

// RegisterHandler adds a factory under its step type. Re-registering a type
// replaces the previous factory.
func (r *Registry) RegisterHandler(factory protocol.StepHandlerFactory) {
	r.factories[factory.ID()] = factory
}

// CreateHandler instantiates the handler for a step type.
func (r *Registry) CreateHandler(stepType string, config map[string]any) (protocol.StepHandler, error) {
	factory, ok := r.factories[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' not registered", stepType)
	}

	return factory.Create(config)
}

// Component returns the metadata of a registered step type.
func (r *Registry) Component(stepType string) (*models.RegisteredComponent, bool) {
	factory, ok := r.factories[stepType]
	if !ok {
		return nil, false
	}

	return factory.Component(), true
}

// Components lists all registered step types, sorted for stable API output.
func (r *Registry) Components() []*models.RegisteredComponent {
	components := make([]*models.RegisteredComponent, 0, len(r.factories))
	for _, factory := range r.factories {
		components = append(components, factory.Component())
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Type < components[j].Type
	})

	return components
}

// HealthCheck reports whether the registry is serviceable.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "No step handlers registered", false
	}

	return fmt.Sprintf("%d step handlers registered", len(r.factories)), true
}

// ValidateParameters checks a step's parameters against the handler's
// declared JSON schema. Handlers without a schema accept anything.
func (r *Registry) ValidateParameters(stepType string, params map[string]any) error {
	component, ok := r.Component(stepType)
	if !ok {
		return fmt.Errorf("step type '%s' not registered", stepType)
	}

	if component.Schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(component.Schema)
	if err != nil {
		return fmt.Errorf("invalid schema for step type %s: %w", stepType, err)
	}

	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return fmt.Errorf("schema validation for step type %s: %w", stepType, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("invalid parameters for step type %s: %s", stepType, strings.Join(details, "; "))
}
