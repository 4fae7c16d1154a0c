// Package persistence provides the durable storage abstraction for playbooks
// and execution records. The scheduler reports each state transition after it
// is applied in memory; implementations only store and retrieve.
package persistence

import (
	"context"

	"github.com/gridpilot/gridpilot/pkg/models"
)

type Persistence interface {
	Playbooks(ctx context.Context) ([]*models.Playbook, error)
	SavePlaybook(ctx context.Context, playbook *models.Playbook) error
	PlaybookByID(ctx context.Context, id string) (*models.Playbook, error)
	DeletePlaybook(ctx context.Context, id string) error

	Executions(ctx context.Context) ([]*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
