package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps capabilities to ordered endpoint chains and tracks the health
// of each endpoint.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig
	health       *breaker
}

// CapabilityConfig orders the endpoints that serve a capability.
type CapabilityConfig struct {
	Description string   `json:"description" yaml:"description"`
	Preferred   []string `json:"preferred" yaml:"preferred"`

	// Fallback is tried only after every preferred endpoint fails.
	Fallback []string `json:"fallback" yaml:"fallback"`
}

// EndpointConfig is one model behind one provider.
type EndpointConfig struct {
	// Provider names a registered llm provider: anthropic, ollama or openai.
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	Model     string `json:"model" yaml:"model"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// DefaultsConfig names the endpoint used for unconfigured capabilities.
type DefaultsConfig struct {
	Model string `json:"model" yaml:"model"`
}

// NewRegistry creates a registry with the given capabilities and endpoints.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     &DefaultsConfig{Model: "default"},
	}
}

// NewDefaultRegistry prefers hosted models per stage family and ends every
// chain at a local ollama model.
func NewDefaultRegistry() *Registry {
	const local = "llama3.2"
	r := NewRegistry(map[Capability]*CapabilityConfig{
		CapabilityPlanning: {
			Description: "Destination brainstorming and ranking against the group profile",
			Preferred:   []string{"claude-sonnet"},
			Fallback:    []string{"gpt-4o-mini", local},
		},
		CapabilityResearch: {
			Description: "Per-destination facts, costs and sources",
			Preferred:   []string{"gpt-4o-mini"},
			Fallback:    []string{"claude-haiku", local},
		},
		CapabilityWriting: {
			Description: "Day-by-day itinerary drafts and polish",
			Preferred:   []string{"claude-sonnet"},
			Fallback:    []string{"gpt-4o-mini", local},
		},
		CapabilityFast: {
			Description: "Short structured answers",
			Preferred:   []string{"claude-haiku"},
			Fallback:    []string{local},
		},
	}, map[string]*EndpointConfig{
		"claude-sonnet": {Provider: "anthropic", Model: "claude-sonnet-4-20250514", MaxTokens: 200000},
		"claude-haiku":  {Provider: "anthropic", Model: "claude-haiku-3-5-20241022", MaxTokens: 200000},
		"gpt-4o-mini":   {Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 128000},
		local:           {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "llama3.2", MaxTokens: 128000},
	})
	r.defaults = &DefaultsConfig{Model: local}
	return r
}

// Resolve returns the first preferred endpoint for c, or the default.
func (r *Registry) Resolve(c Capability) string {
	chain := r.GetFallbackChain(c)
	return chain[0]
}

// GetFallbackChain returns every endpoint name for c, preferred first. A
// capability without endpoints resolves to the default alone.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.capabilities[c]
	if !ok {
		return []string{r.defaultModel()}
	}
	chain := lo.Uniq(slices.Concat(cfg.Preferred, cfg.Fallback))
	if len(chain) == 0 {
		return []string{r.defaultModel()}
	}
	return chain
}

// GetEndpoint returns the endpoint configuration for a name, or nil.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// ListCapabilities returns all configured capabilities, sorted.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	caps := lo.Keys(r.capabilities)
	r.mu.RUnlock()
	slices.Sort(caps)
	return caps
}

// Validate checks that every chain every generation stage can reach names a
// complete endpoint. All problems are reported together.
func (r *Registry) Validate() error {
	var errs []error
	seen := map[Capability]bool{}
	stages := lo.Keys(StageCapabilities)
	slices.Sort(stages)
	for _, stage := range stages {
		c := CapabilityForStage(stage)
		if seen[c] {
			continue
		}
		seen[c] = true
		for _, name := range r.GetFallbackChain(c) {
			ep := r.GetEndpoint(name)
			switch {
			case ep == nil:
				errs = append(errs, fmt.Errorf("capability %s: endpoint %q is not configured", c, name))
			case ep.Provider == "" || ep.Model == "":
				errs = append(errs, fmt.Errorf("capability %s: endpoint %q needs a provider and a model", c, name))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) defaultModel() string {
	if r.defaults == nil || r.defaults.Model == "" {
		return "default"
	}
	return r.defaults.Model
}
