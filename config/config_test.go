package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/tripsync/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Generation.Backend != BackendRegistry {
		t.Errorf("expected registry backend, got %s", cfg.Generation.Backend)
	}
	if cfg.Storage.Backend != StorageNATS || !cfg.Storage.NATS.Embedded {
		t.Error("expected embedded NATS storage by default")
	}
	if cfg.Pipeline.MaxRegenIterations != 5 {
		t.Errorf("expected 5 regeneration iterations, got %d", cfg.Pipeline.MaxRegenIterations)
	}
	if cfg.Pipeline.MinCandidates != 8 || cfg.Pipeline.MaxCandidates != 12 {
		t.Errorf("expected candidate bounds 8..12, got %d..%d", cfg.Pipeline.MinCandidates, cfg.Pipeline.MaxCandidates)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Model.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "unknown generation backend",
			modify:  func(c *Config) { c.Generation.Backend = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name:    "openai backend without model",
			modify:  func(c *Config) { c.Generation.Backend = BackendOpenAI; c.Generation.Model = "" },
			wantErr: true,
		},
		{
			name:    "external NATS without url",
			modify:  func(c *Config) { c.Storage.NATS.Embedded = false },
			wantErr: true,
		},
		{
			name:    "badger without path",
			modify:  func(c *Config) { c.Storage.Backend = StorageBadger },
			wantErr: true,
		},
		{
			name: "badger in memory",
			modify: func(c *Config) {
				c.Storage.Backend = StorageBadger
				c.Storage.Badger.InMemory = true
			},
			wantErr: false,
		},
		{
			name:    "inverted candidate bounds",
			modify:  func(c *Config) { c.Pipeline.MinCandidates = 10; c.Pipeline.MaxCandidates = 9 },
			wantErr: true,
		},
		{
			name:    "zero regeneration budget",
			modify:  func(c *Config) { c.Pipeline.MaxRegenIterations = 0 },
			wantErr: true,
		},
		{
			name:    "zero burst",
			modify:  func(c *Config) { c.HTTP.Burst = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
model:
  temperature: 0.7
  registry:
    capabilities:
      writing:
        preferred: [local-writer]
    endpoints:
      local-writer:
        provider: ollama
        url: http://localhost:11434/v1
        model: qwen2.5:14b
generation:
  backend: openai
  model: gpt-4o
  stage_timeout: 90s
storage:
  backend: badger
  badger:
    path: /var/lib/tripsync
pipeline:
  max_regen_iterations: 3
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Model.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %f", cfg.Model.Temperature)
	}
	if cfg.Generation.Backend != BackendOpenAI || cfg.Generation.Model != "gpt-4o" {
		t.Errorf("unexpected generation config %+v", cfg.Generation)
	}
	if cfg.Generation.StageTimeout != 90*time.Second {
		t.Errorf("expected stage timeout 90s, got %v", cfg.Generation.StageTimeout)
	}
	if cfg.Storage.Badger.Path != "/var/lib/tripsync" {
		t.Errorf("expected badger path, got %q", cfg.Storage.Badger.Path)
	}
	if cfg.Pipeline.MaxRegenIterations != 3 {
		t.Errorf("expected 3 iterations, got %d", cfg.Pipeline.MaxRegenIterations)
	}
	// Unset keys keep their defaults.
	if cfg.Pipeline.ResearchConcurrency != 4 {
		t.Errorf("expected default research concurrency, got %d", cfg.Pipeline.ResearchConcurrency)
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	if got := reg.Resolve(model.CapabilityWriting); got != "local-writer" {
		t.Errorf("expected writing to resolve to local-writer, got %s", got)
	}
	if got := reg.Resolve(model.CapabilityResearch); got != "gpt-4o-mini" {
		t.Errorf("expected research default to survive merge, got %s", got)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Generation: GenerationConfig{
			Model: "override-model",
		},
		Storage: StorageConfig{
			NATS: NATSConfig{URL: "nats://nats.prod:4222"},
		},
		Auth: AuthConfig{Audience: "tripsync"},
	}

	base.Merge(override)

	if base.Generation.Model != "override-model" {
		t.Errorf("expected model override-model, got %s", base.Generation.Model)
	}
	if base.Generation.Backend != BackendRegistry {
		t.Errorf("expected backend to remain default, got %s", base.Generation.Backend)
	}
	if base.Storage.NATS.URL != "nats://nats.prod:4222" || base.Storage.NATS.Embedded {
		t.Errorf("expected external NATS, got %+v", base.Storage.NATS)
	}
	if base.Auth.Audience != "tripsync" {
		t.Errorf("expected audience tripsync, got %q", base.Auth.Audience)
	}
	if base.HTTP.Addr != ":8080" {
		t.Errorf("expected default addr, got %q", base.HTTP.Addr)
	}

	base.Merge(nil)
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Generation.Model = "saved-model"
	cfg.Generation.StageTimeout = 45 * time.Second

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Generation.Model != "saved-model" {
		t.Errorf("expected model saved-model, got %s", loaded.Generation.Model)
	}
	if loaded.Generation.StageTimeout != 45*time.Second {
		t.Errorf("expected stage timeout to round trip, got %v", loaded.Generation.StageTimeout)
	}
}

func TestBuildRegistryRejectsDanglingEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Registry = &model.RegistryConfig{
		Capabilities: map[string]*model.CapabilityConfig{
			"planning": {Preferred: []string{"nowhere"}},
		},
	}

	if _, err := cfg.BuildRegistry(); err == nil {
		t.Fatal("expected error for capability naming an unconfigured endpoint")
	}
}
