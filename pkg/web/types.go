// Package web provides HTTP request and response types for the playbook API.
package web

import "github.com/gridpilot/gridpilot/pkg/models"

// CreatePlaybookRequest represents the request body for creating a playbook.
type CreatePlaybookRequest struct {
	Name          string                `json:"name"           validate:"required,min=3"`
	Description   string                `json:"description"`
	ResourceClass string                `json:"resource_class" validate:"required"`
	Steps         []models.PlaybookStep `json:"steps"          validate:"required,min=1,dive"`
	Variables     map[string]any        `json:"variables,omitempty"`
}

// SubmitExecutionRequest represents the request body for submitting a run.
type SubmitExecutionRequest struct {
	PlaybookID       string            `json:"playbook_id"                 validate:"required"`
	Parameters       map[string]any    `json:"parameters,omitempty"`
	Priority         int               `json:"priority"                    validate:"min=0,max=100"`
	TimeoutOverrides map[string]string `json:"timeout_overrides,omitempty"`
}

// SubmitExecutionResponse carries the id of the queued run.
type SubmitExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
