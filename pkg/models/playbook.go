// Package models defines the core domain models for playbook automation.
package models

import "time"

// Playbook is a named, versioned sequence of steps describing an automated
// procedure against gateways, browser UIs or designer tools.
type Playbook struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"           validate:"required,min=3"`
	Description   string         `json:"description"`
	Version       string         `json:"version"`
	ResourceClass string         `json:"resource_class" validate:"required"`
	Steps         []PlaybookStep `json:"steps"          validate:"required,min=1,dive"`
	Variables     map[string]any `json:"variables,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PlaybookStep is one unit of work within a playbook, typed by the handler
// that executes it.
type PlaybookStep struct {
	ID              string         `json:"id"`
	UID             string         `json:"uid"  validate:"required,lowercase"`
	Name            string         `json:"name" validate:"required"`
	Type            string         `json:"type" validate:"required"`
	Parameters      map[string]any `json:"parameters"`
	ContinueOnError bool           `json:"continue_on_error"`
	Enabled         bool           `json:"enabled"`
}
