// Package checks implements the health check plugins and the executor
// that runs them against monitored sites.
package checks

import (
	"context"

	"sitewatch/internal/models"
)

// Outcome is the result a single check execution produces.
type Outcome struct {
	Status         models.CheckStatus
	ResponseTimeMS *int
	ErrorMessage   string
	ResultData     map[string]any
}

// Check is one health check plugin. Implementations must be safe for
// concurrent use: Execute may be called for many configurations at once.
type Check interface {
	// Type is the stable identifier stored in check_configurations.
	Type() string
	// DisplayName is the human-readable name shown in the UI.
	DisplayName() string
	// Description is a one-line summary of what the check verifies.
	Description() string
	// ConfigSchema describes the configuration fields the frontend
	// should render for this check type.
	ConfigSchema() Schema
	// Execute runs the check against the site URL with the stored
	// configuration map. It returns an Outcome even on failure; an
	// error return is reserved for the caller's panic guard and is
	// not part of the plugin contract.
	Execute(ctx context.Context, siteURL string, config map[string]any) Outcome
}

// ─── Config Schema Types ────────────────────────────────────────────────

// FieldType enumerates input types the frontend should render.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
	FieldSelect   FieldType = "select"
	FieldList     FieldType = "list"
	FieldMap      FieldType = "map"
)

// SelectOption is a single choice in a select dropdown.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one configuration input for a check type.
type Field struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Type        FieldType      `json:"type"`
	Placeholder string         `json:"placeholder,omitempty"`
	HelpText    string         `json:"help_text,omitempty"`
	Required    bool           `json:"required"`
	Options     []SelectOption `json:"options,omitempty"`
	Default     string         `json:"default,omitempty"`
}

// Schema describes a check type's configuration form.
type Schema struct {
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// success builds a passing outcome with timing and result data.
func success(elapsedMS int, data map[string]any) Outcome {
	ms := elapsedMS
	return Outcome{Status: models.StatusSuccess, ResponseTimeMS: &ms, ResultData: data}
}

// failure builds a failing outcome. elapsedMS may be negative when no
// meaningful timing was recorded.
func failure(msg string, elapsedMS int, data map[string]any) Outcome {
	o := Outcome{Status: models.StatusFailure, ErrorMessage: msg, ResultData: data}
	if elapsedMS >= 0 {
		ms := elapsedMS
		o.ResponseTimeMS = &ms
	}
	return o
}

// warning builds a degraded-but-up outcome.
func warning(msg string, elapsedMS int, data map[string]any) Outcome {
	o := Outcome{Status: models.StatusWarning, ErrorMessage: msg, ResultData: data}
	if elapsedMS >= 0 {
		ms := elapsedMS
		o.ResponseTimeMS = &ms
	}
	return o
}
