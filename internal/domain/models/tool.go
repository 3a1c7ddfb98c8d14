package models

import (
	"time"
)

// ToolInput describes one argument of a community tool.
type ToolInput struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "boolean"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolEndpoint is the HTTP call a community tool performs. Arguments are
// interpolated into the URL as {name} placeholders or sent as JSON for
// non-GET methods.
type ToolEndpoint struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Header map[string]string `json:"header,omitempty"`
}

// ToolSpec is a stored community tool definition, executed over HTTP by
// the config-tool family.
type ToolSpec struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Name        string       `json:"name"` // machine name exposed to the model
	DisplayName string       `json:"displayName"`
	Description string       `json:"description,omitempty"`
	Endpoint    ToolEndpoint `json:"endpoint"`
	Inputs      []ToolInput  `json:"inputs,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
