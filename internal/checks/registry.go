package checks

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the available check plugins keyed by type.
type Registry struct {
	checks map[string]Check
}

// NewRegistry builds a registry with every built-in check registered.
func NewRegistry() *Registry {
	r := &Registry{checks: make(map[string]Check)}
	r.mustRegister(
		&HTTPCheck{},
		&DNSCheck{},
		&SSLCheck{},
		&TLSVersionCheck{},
		&PingCheck{},
		&PortCheck{},
		&KeywordCheck{},
		&HeaderCheck{},
		&JSONAPICheck{},
		&RedirectCheck{},
		&ResponseTimeCheck{},
		&SMTPCheck{},
		&IMAPCheck{},
		&POP3Check{},
	)
	return r
}

// mustRegister panics on a duplicate type. Registration happens once at
// startup, so a collision is a programming error worth failing loudly on.
func (r *Registry) mustRegister(cs ...Check) {
	for _, c := range cs {
		if _, exists := r.checks[c.Type()]; exists {
			panic(fmt.Sprintf("checks: duplicate registration for type %q", c.Type()))
		}
		r.checks[c.Type()] = c
	}
}

// Get returns the check plugin for a type, or an error if none exists.
func (r *Registry) Get(checkType string) (Check, error) {
	c, ok := r.checks[checkType]
	if !ok {
		return nil, fmt.Errorf("unknown check type: %s", checkType)
	}
	return c, nil
}

// IsRegistered reports whether a check type exists.
func (r *Registry) IsRegistered(checkType string) bool {
	_, ok := r.checks[checkType]
	return ok
}

// ValidateConfig checks a configuration map against the check type's
// schema: every required field must be present and non-blank.
func (r *Registry) ValidateConfig(checkType string, config map[string]any) error {
	c, err := r.Get(checkType)
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

// Schemas returns every check type's config schema, sorted by type for
// stable API output.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.checks))
	for _, c := range r.checks {
		out = append(out, c.ConfigSchema())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Types returns the registered type identifiers, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.checks))
	for t := range r.checks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
