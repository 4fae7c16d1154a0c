package models

// HandlerDomain groups step types by the automation surface they drive.
type HandlerDomain string

const (
	DomainGateway  HandlerDomain = "gateway"
	DomainBrowser  HandlerDomain = "browser"
	DomainDesigner HandlerDomain = "designer"
	DomainUtility  HandlerDomain = "utility"
)

// JSONSchema describes the parameter schema of a step handler, used for
// validation and UI description.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// RegisteredComponent carries the static metadata of a registered step
// handler: its domain, parameter schema and timeout category.
type RegisteredComponent struct {
	Type            string          `json:"type"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Domain          HandlerDomain   `json:"domain"`
	TimeoutCategory TimeoutCategory `json:"timeout_category"`
	Schema          *JSONSchema     `json:"schema,omitempty"`
}
