// Package config provides configuration loading and management for TripSync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/tripsync/model"
)

// Generation backends.
const (
	BackendRegistry = "registry"
	BackendOpenAI   = "openai"
)

// Storage backends.
const (
	StorageNATS   = "nats"
	StorageBadger = "badger"
)

// Config represents the complete TripSync configuration
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// ModelConfig configures capability routing for the registry backend
type ModelConfig struct {
	// Temperature controls randomness (0.0-1.0, default: 0.4)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits each completion (0 = endpoint default)
	MaxTokens int `yaml:"max_tokens"`
	// RegistryFile is an optional JSON or YAML model registry
	RegistryFile string `yaml:"registry_file,omitempty"`
	// Registry overrides capability chains and endpoints inline
	Registry *model.RegistryConfig `yaml:"registry,omitempty"`
}

// GenerationConfig selects the generation backend
type GenerationConfig struct {
	// Backend is "registry" (llm client with fallback) or "openai"
	Backend string `yaml:"backend"`
	// Model is the OpenAI model name (openai backend only)
	Model string `yaml:"model"`
	// BaseURL points the openai backend at a compatible server
	BaseURL string `yaml:"base_url"`
	// APIKey for the openai backend; falls back to OPENAI_API_KEY
	APIKey string `yaml:"api_key,omitempty"`
	// StageTimeout bounds every pipeline stage
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// StorageConfig configures persistence
type StorageConfig struct {
	// Backend is "nats" (JetStream KV) or "badger"
	Backend string       `yaml:"backend"`
	NATS    NATSConfig   `yaml:"nats"`
	Badger  BadgerConfig `yaml:"badger"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
	// StoreDir holds embedded JetStream data (empty = temp dir)
	StoreDir string `yaml:"store_dir,omitempty"`
}

// BadgerConfig configures the badger store
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// RequestsPerSecond is the per-user rate limit
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// MembershipTTL caches trip membership lookups
	MembershipTTL time.Duration `yaml:"membership_ttl"`
}

// AuthConfig configures JWT verification
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret,omitempty"`
	// Audience is checked when non-empty
	Audience string `yaml:"audience,omitempty"`
}

// PipelineConfig bounds the workflows
type PipelineConfig struct {
	MaxRegenIterations  int `yaml:"max_regen_iterations"`
	MinCandidates       int `yaml:"min_candidates"`
	MaxCandidates       int `yaml:"max_candidates"`
	ResearchConcurrency int `yaml:"research_concurrency"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Temperature: 0.4,
		},
		Generation: GenerationConfig{
			Backend:      BackendRegistry,
			Model:        "gpt-4o-mini",
			StageTimeout: 3 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: StorageNATS,
			NATS: NATSConfig{
				URL:      "",
				Embedded: true,
			},
			Badger: BadgerConfig{
				Path: "",
			},
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			RequestsPerSecond: 1,
			Burst:             5,
			MembershipTTL:     time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxRegenIterations:  5,
			MinCandidates:       8,
			MaxCandidates:       12,
			ResearchConcurrency: 4,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must not be negative")
	}

	switch c.Generation.Backend {
	case BackendRegistry:
	case BackendOpenAI:
		if c.Generation.Model == "" {
			return fmt.Errorf("generation.model is required for the openai backend")
		}
	default:
		return fmt.Errorf("generation.backend must be %q or %q, got %q", BackendRegistry, BackendOpenAI, c.Generation.Backend)
	}
	if c.Generation.StageTimeout < 0 {
		return fmt.Errorf("generation.stage_timeout must not be negative")
	}

	switch c.Storage.Backend {
	case StorageNATS:
		if !c.Storage.NATS.Embedded && c.Storage.NATS.URL == "" {
			return fmt.Errorf("storage.nats.url is required when not embedded")
		}
	case StorageBadger:
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
			return fmt.Errorf("storage.badger.path is required unless in_memory is set")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageNATS, StorageBadger, c.Storage.Backend)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.RequestsPerSecond <= 0 || c.HTTP.Burst < 1 {
		return fmt.Errorf("http.requests_per_second and http.burst must be positive")
	}

	p := c.Pipeline
	if p.MaxRegenIterations < 1 {
		return fmt.Errorf("pipeline.max_regen_iterations must be at least 1")
	}
	if p.MinCandidates < 1 || p.MaxCandidates < p.MinCandidates {
		return fmt.Errorf("pipeline candidate bounds are invalid: min %d, max %d", p.MinCandidates, p.MaxCandidates)
	}
	if p.ResearchConcurrency < 1 {
		return fmt.Errorf("pipeline.research_concurrency must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadOverlay parses a YAML file without defaults, so only the keys present
// in the file are non-zero and win in Merge.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.RegistryFile != "" {
		c.Model.RegistryFile = other.Model.RegistryFile
	}
	if other.Model.Registry != nil {
		c.Model.Registry = other.Model.Registry
	}

	// Generation
	g := other.Generation
	if g.Backend != "" {
		c.Generation.Backend = g.Backend
	}
	if g.Model != "" {
		c.Generation.Model = g.Model
	}
	if g.BaseURL != "" {
		c.Generation.BaseURL = g.BaseURL
	}
	if g.APIKey != "" {
		c.Generation.APIKey = g.APIKey
	}
	if g.StageTimeout != 0 {
		c.Generation.StageTimeout = g.StageTimeout
	}

	// Storage
	s := other.Storage
	if s.Backend != "" {
		c.Storage.Backend = s.Backend
	}
	if s.NATS.URL != "" {
		c.Storage.NATS.URL = s.NATS.URL
		c.Storage.NATS.Embedded = false
	}
	if s.NATS.StoreDir != "" {
		c.Storage.NATS.StoreDir = s.NATS.StoreDir
	}
	if s.Badger.Path != "" {
		c.Storage.Badger.Path = s.Badger.Path
	}
	if s.Badger.InMemory {
		c.Storage.Badger.InMemory = true
	}

	// HTTP
	h := other.HTTP
	if h.Addr != "" {
		c.HTTP.Addr = h.Addr
	}
	if h.RequestsPerSecond != 0 {
		c.HTTP.RequestsPerSecond = h.RequestsPerSecond
	}
	if h.Burst != 0 {
		c.HTTP.Burst = h.Burst
	}
	if h.MembershipTTL != 0 {
		c.HTTP.MembershipTTL = h.MembershipTTL
	}

	// Auth
	if other.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = other.Auth.JWTSecret
	}
	if other.Auth.Audience != "" {
		c.Auth.Audience = other.Auth.Audience
	}

	// Pipeline
	p := other.Pipeline
	if p.MaxRegenIterations != 0 {
		c.Pipeline.MaxRegenIterations = p.MaxRegenIterations
	}
	if p.MinCandidates != 0 {
		c.Pipeline.MinCandidates = p.MinCandidates
	}
	if p.MaxCandidates != 0 {
		c.Pipeline.MaxCandidates = p.MaxCandidates
	}
	if p.ResearchConcurrency != 0 {
		c.Pipeline.ResearchConcurrency = p.ResearchConcurrency
	}
}

// BuildRegistry returns the model registry described by the config: the
// default registry, then RegistryFile, then the inline Registry.
func (c *Config) BuildRegistry() (*model.Registry, error) {
	reg := model.NewDefaultRegistry()
	if c.Model.RegistryFile != "" {
		fromFile, err := model.LoadFromFile(c.Model.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		reg.MergeFromConfig(fromFile.ToConfig())
	}
	reg.MergeFromConfig(c.Model.Registry)
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("model registry: %w", err)
	}
	return reg, nil
}
