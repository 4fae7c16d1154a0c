package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
	"github.com/gridpilot/gridpilot/pkg/registry"
)

// ErrPlaybookNotFound is returned when a playbook is not found.
var ErrPlaybookNotFound = persistence.ErrPlaybookNotFound

type Playbook struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

// NewPlaybook creates a new playbook service. The registry is used to check
// step types and parameters at save time; pass nil to skip those checks.
func NewPlaybook(p persistence.Persistence, r *registry.Registry) *Playbook {
	return &Playbook{
		persistence: p,
		registry:    r,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Save validates and stores a playbook, assigning an id when absent.
func (s *Playbook) Save(ctx context.Context, playbook *models.Playbook) (*models.Playbook, error) {
	if playbook.ID == "" {
		playbook.ID = "pb-" + uuid.New().String()
	}

	now := time.Now().UTC()
	if playbook.CreatedAt.IsZero() {
		playbook.CreatedAt = now
	}

	playbook.UpdatedAt = now

	if err := s.validate.Struct(playbook); err != nil {
		return nil, NewValidationError(err)
	}

	if err := s.validateSteps(playbook); err != nil {
		return nil, NewValidationError(err)
	}

	if err := s.persistence.SavePlaybook(ctx, playbook); err != nil {
		return nil, err
	}

	return playbook, nil
}

// validateSteps checks each step type against the registry. Parameters are
// schema-checked only when they carry no template references; templated
// values take their final shape at execution time.
func (s *Playbook) validateSteps(playbook *models.Playbook) error {
	if s.registry == nil {
		return nil
	}

	for _, step := range playbook.Steps {
		if _, ok := s.registry.Component(step.Type); !ok {
			return fmt.Errorf("step %s: unknown step type %q", step.ID, step.Type)
		}

		if hasTemplateReferences(step.Parameters) {
			continue
		}

		if err := s.registry.ValidateParameters(step.Type, step.Parameters); err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
	}

	return nil
}

func hasTemplateReferences(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, "{{")
	case map[string]any:
		for _, item := range v {
			if hasTemplateReferences(item) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if hasTemplateReferences(item) {
				return true
			}
		}
	}

	return false
}

func (s *Playbook) ByID(ctx context.Context, id string) (*models.Playbook, error) {
	return s.persistence.PlaybookByID(ctx, id)
}

func (s *Playbook) List(ctx context.Context) ([]*models.Playbook, error) {
	return s.persistence.Playbooks(ctx)
}

// HealthCheck checks the health of the persistence layer.
func (s *Playbook) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
