// Package manifest loads yaml overlay manifests: named sets of overlay
// provider types that an embedding runtime can activate by name.
//
// A manifest looks like:
//
//	overlays:
//	  - name: strings
//	    provider: StringOverlay
//	  - name: temporal
//	    providers: [TimeOverlay, DurationOverlay]
//
// Provider names are resolved against a meta.Hierarchy at activation
// time, so a manifest can be parsed before the runtime has registered
// its types.
package manifest

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/overlay"
	"github.com/funvibe/overlay/meta"
)

// Config represents the top-level overlays.yaml configuration.
type Config struct {
	Overlays []*Set `yaml:"overlays"`
}

// Set is a named group of overlay provider types, activated together.
// Either Provider (single-provider shorthand) or Providers is set,
// never both.
type Set struct {
	Name      string   `yaml:"name"`
	Provider  string   `yaml:"provider,omitempty"`
	Providers []string `yaml:"providers,omitempty"`

	id string // generated per parse, used in diagnostics
}

// LoadConfig reads and parses an overlays.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses and validates manifest data. The path is only
// used in error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid yaml: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	for _, s := range cfg.Overlays {
		s.id = uuid.NewString()
	}
	return &cfg, nil
}

func (c *Config) validate(path string) error {
	seen := make(map[string]bool)
	for i, s := range c.Overlays {
		if s.Name == "" {
			return fmt.Errorf("%s: overlays[%d]: name is required", path, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s: overlays[%d]: duplicate set %q", path, i, s.Name)
		}
		seen[s.Name] = true
		if s.Provider != "" && len(s.Providers) > 0 {
			return fmt.Errorf("%s: overlays[%d] (%s): provider and providers are mutually exclusive", path, i, s.Name)
		}
		if s.Provider == "" && len(s.Providers) == 0 {
			return fmt.Errorf("%s: overlays[%d] (%s): at least one provider is required", path, i, s.Name)
		}
		for j, p := range s.Providers {
			if p == "" {
				return fmt.Errorf("%s: overlays[%d] (%s): providers[%d] is empty", path, i, s.Name, j)
			}
		}
	}
	return nil
}

// Set returns the named overlay set.
func (c *Config) Set(name string) (*Set, bool) {
	for _, s := range c.Overlays {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// ID returns the set's parse-time instance id.
func (s *Set) ID() string { return s.id }

// ProviderNames returns the set's providers in activation order,
// regardless of which yaml form declared them.
func (s *Set) ProviderNames() []string {
	if s.Provider != "" {
		return []string{s.Provider}
	}
	return s.Providers
}

// Resolve maps the set's provider names to hierarchy nodes, in
// activation order.
func (s *Set) Resolve(h *meta.Hierarchy) ([]overlay.Type, error) {
	names := s.ProviderNames()
	types := make([]overlay.Type, 0, len(names))
	for _, name := range names {
		t, ok := h.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("overlay set %q (%s): provider type %q is not defined", s.Name, s.id, name)
		}
		types = append(types, t)
	}
	return types, nil
}

// Use resolves the set against h and activates it on r for the
// duration of body.
func (s *Set) Use(r *overlay.Runtime, h *meta.Hierarchy, body func() error) error {
	types, err := s.Resolve(h)
	if err != nil {
		return err
	}
	return r.UseAll(types, body)
}
