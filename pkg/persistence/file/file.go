// Package file implements persistence on top of a directory of JSON files,
// one file per record. It is the reference implementation used for local
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence"
)

const (
	playbooksDir  = "playbooks"
	executionsDir = "executions"
)

type Persistence struct {
	root string
	mu   sync.RWMutex
}

func NewPersistence(root string) *Persistence {
	return &Persistence{root: root}
}

func (p *Persistence) Playbooks(ctx context.Context) ([]*models.Playbook, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var playbooks []*models.Playbook

	err := p.readAll(playbooksDir, func(data []byte) error {
		var playbook models.Playbook
		if err := json.Unmarshal(data, &playbook); err != nil {
			return err
		}

		playbooks = append(playbooks, &playbook)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return playbooks, nil
}

func (p *Persistence) SavePlaybook(ctx context.Context, playbook *models.Playbook) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.write(playbooksDir, playbook.ID, playbook)
}

func (p *Persistence) PlaybookByID(ctx context.Context, id string) (*models.Playbook, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var playbook models.Playbook

	err := p.read(playbooksDir, id, &playbook)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrPlaybookNotFound
	}

	if err != nil {
		return nil, err
	}

	return &playbook, nil
}

func (p *Persistence) DeletePlaybook(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.path(playbooksDir, id))
	if errors.Is(err, os.ErrNotExist) {
		return persistence.ErrPlaybookNotFound
	}

	return err
}

func (p *Persistence) Executions(ctx context.Context) ([]*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var executions []*models.Execution

	err := p.readAll(executionsDir, func(data []byte) error {
		var execution models.Execution
		if err := json.Unmarshal(data, &execution); err != nil {
			return err
		}

		executions = append(executions, &execution)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return executions, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var execution models.Execution

	err := p.read(executionsDir, id, &execution)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewExecutionError("ByID", id, err)
	}

	return &execution, nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", p.root)
	}

	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

func (p *Persistence) path(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

func (p *Persistence) write(kind, id string, record any) error {
	if err := os.MkdirAll(filepath.Join(p.root, kind), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(p.path(kind, id), data, 0o644)
}

func (p *Persistence) read(kind, id string, record any) error {
	data, err := os.ReadFile(p.path(kind, id))
	if err != nil {
		return err
	}

	return json.Unmarshal(data, record)
}

func (p *Persistence) readAll(kind string, visit func(data []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(p.root, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.root, kind, entry.Name()))
		if err != nil {
			return err
		}

		if err := visit(data); err != nil {
			return err
		}
	}

	return nil
}
