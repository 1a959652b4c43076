package personas

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Style selects how the analyzer frames the synthesized answer.
type Style string

const (
	StyleDefault   Style = "default"
	StyleNarrative Style = "narrative"
	StyleTechnical Style = "technical"
	StyleCreative  Style = "creative"
)

// Profile describes one persona: a writing-style descriptor plus ordered
// style instructions fed into planning guidance and synthesis.
type Profile struct {
	ID           string   `yaml:"id" json:"id"`
	Description  string   `yaml:"description" json:"description"`
	Style        Style    `yaml:"style" json:"style"`
	Instructions []string `yaml:"instructions" json:"instructions"`
}

// Guidance is the planner-facing view of a profile.
type Guidance struct {
	Persona      string   `json:"persona"`
	Description  string   `json:"description"`
	Instructions []string `json:"instructions"`
}

// DefaultPersona is used whenever a requested persona is unknown.
const DefaultPersona = "default"

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"default": {
			ID:          "default",
			Description: "balanced and comprehensive",
			Style:       StyleDefault,
			Instructions: []string{
				"Cover the main points evenly",
				"Keep a neutral, informative tone",
				"Support claims with the gathered sources",
			},
		},
		"clear-explainer": {
			ID:          "clear-explainer",
			Description: "clear, step-by-step explanations for a general audience",
			Style:       StyleNarrative,
			Instructions: []string{
				"Open with a plain-language summary",
				"Explain one idea at a time, building on the last",
				"Avoid jargon; define terms when unavoidable",
			},
		},
		"technical": {
			ID:          "technical",
			Description: "precise, structured, implementation-oriented",
			Style:       StyleTechnical,
			Instructions: []string{
				"Lead with the technical core of the answer",
				"Use structured sections and exact terminology",
				"Call out constraints, trade-offs and edge cases",
			},
		},
		"creative": {
			ID:          "creative",
			Description: "narrative, engaging, analogy-driven",
			Style:       StyleCreative,
			Instructions: []string{
				"Frame the answer as a short narrative",
				"Use analogies to make abstract points concrete",
				"Keep the facts grounded even when the framing is loose",
			},
		},
	}
}

// Registry holds persona profiles. Lookups never fail: unknown personas
// resolve to the default profile.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	log      *zap.Logger
}

// NewRegistry returns a registry seeded with the built-in profiles.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{profiles: builtinProfiles(), log: logger}
}

// Get resolves a persona by name, falling back to the default profile.
func (r *Registry) Get(name string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[name]; ok {
		return p
	}
	return r.profiles[DefaultPersona]
}

// Known reports whether the persona is registered under its own name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.profiles[name]
	return ok
}

// Guidance returns the planner-facing guidance for a persona.
func (r *Registry) Guidance(name string) Guidance {
	p := r.Get(name)
	return Guidance{
		Persona:      p.ID,
		Description:  p.Description,
		Instructions: p.Instructions,
	}
}

// List returns all profiles ordered by ID.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Values(r.profiles)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type profileFile struct {
	Personas []Profile `yaml:"personas"`
}

// LoadFile overlays profiles from a YAML file onto the built-ins. Profiles
// with an empty ID are rejected; the default profile cannot be removed.
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read persona config: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse persona config: %w", err)
	}
	loaded := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range f.Personas {
		if p.ID == "" {
			return fmt.Errorf("persona config: profile with empty id")
		}
		if p.Style == "" {
			p.Style = StyleDefault
		}
		r.profiles[p.ID] = p
		loaded++
	}
	r.log.Info("Loaded persona profiles",
		zap.String("path", path),
		zap.Int("count", loaded),
	)
	return nil
}
