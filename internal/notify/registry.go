package notify

import (
	"fmt"
	"sort"
	"strings"
)

// ─── Channel Config Schema Types ────────────────────────────────────────

// FieldType enumerates input types the frontend should render.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldPassword FieldType = "password"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
	FieldSelect   FieldType = "select"
)

// SelectOption is a single choice in a select dropdown.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ChannelField describes one configuration input for a channel type.
type ChannelField struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Type        FieldType      `json:"type"`
	Placeholder string         `json:"placeholder,omitempty"`
	HelpText    string         `json:"help_text,omitempty"`
	Required    bool           `json:"required"`
	Options     []SelectOption `json:"options,omitempty"`
	Default     string         `json:"default,omitempty"`
}

// ChannelSchema describes a channel type's configuration form.
type ChannelSchema struct {
	Type   string         `json:"type"`
	Label  string         `json:"label"`
	Fields []ChannelField `json:"fields"`
}

// ─── Registry ───────────────────────────────────────────────────────────

// Registry holds the available notification channels keyed by type.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry builds a registry with every built-in channel registered.
func NewRegistry() *Registry {
	r := &Registry{channels: make(map[string]Channel)}
	r.mustRegister(
		&EmailChannel{},
		&WebhookChannel{},
		&SlackChannel{},
		&DiscordChannel{},
		&ShoutrrrChannel{},
	)
	return r
}

func (r *Registry) mustRegister(cs ...Channel) {
	for _, c := range cs {
		if _, exists := r.channels[c.Type()]; exists {
			panic(fmt.Sprintf("notify: duplicate registration for type %q", c.Type()))
		}
		r.channels[c.Type()] = c
	}
}

// Get returns the channel for a type, or an error if none exists.
func (r *Registry) Get(channelType string) (Channel, error) {
	c, ok := r.channels[channelType]
	if !ok {
		return nil, fmt.Errorf("unknown channel type: %s", channelType)
	}
	return c, nil
}

// IsRegistered reports whether a channel type exists.
func (r *Registry) IsRegistered(channelType string) bool {
	_, ok := r.channels[channelType]
	return ok
}

// Schemas returns every channel type's config schema, sorted by type.
func (r *Registry) Schemas() []ChannelSchema {
	out := make([]ChannelSchema, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c.ConfigSchema())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ValidateConfig checks that all required fields for a channel type are
// present and non-empty. The check is advisory, misconfiguration still
// surfaces as a failed delivery.
func (r *Registry) ValidateConfig(channelType string, config map[string]any) error {
	c, err := r.Get(channelType)
	if err != nil {
		return err
	}
	for _, f := range c.ConfigSchema().Fields {
		if !f.Required {
			continue
		}
		v, ok := config[f.Key]
		if !ok {
			return fmt.Errorf("%s is required", f.Label)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", f.Label)
		}
	}
	return nil
}

// SecretMask replaces password-type values in API responses.
const SecretMask = "********"

// MaskSecrets returns a copy of config with password-type values
// replaced by the mask.
func (r *Registry) MaskSecrets(channelType string, config map[string]any) map[string]any {
	c, err := r.Get(channelType)
	if err != nil {
		return config
	}
	secret := make(map[string]bool)
	for _, f := range c.ConfigSchema().Fields {
		if f.Type == FieldPassword {
			secret[f.Key] = true
		}
	}
	masked := make(map[string]any, len(config))
	for k, v := range config {
		if secret[k] {
			if s, ok := v.(string); ok && s != "" {
				masked[k] = SecretMask
				continue
			}
		}
		masked[k] = v
	}
	return masked
}

// UnmaskSecrets restores masked values from the previously stored
// config so that an update round-trip does not overwrite secrets with
// the placeholder.
func (r *Registry) UnmaskSecrets(channelType string, incoming, stored map[string]any) map[string]any {
	out := make(map[string]any, len(incoming))
	for k, v := range incoming {
		if s, ok := v.(string); ok && s == SecretMask {
			if prev, ok := stored[k]; ok {
				out[k] = prev
				continue
			}
		}
		out[k] = v
	}
	return out
}
