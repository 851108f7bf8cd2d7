package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testLoader(t *testing.T, home, cwd string, env map[string]string) *Loader {
	t.Helper()
	l := NewLoader(nil)
	l.homeDir = func() (string, error) { return home, nil }
	l.workDir = func() (string, error) { return cwd, nil }
	l.getenv = func(k string) string { return env[k] }
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
model:
  temperature: 0.9
http:
  addr: ":9000"
auth:
  jwt_secret: from-user-file
`)
	writeFile(t, filepath.Join(project, ProjectConfigFile), `
http:
  addr: ":7000"
pipeline:
  max_regen_iterations: 2
`)

	tests := []struct {
		name       string
		env        map[string]string
		wantSecret string
		wantNATS   string
		embedded   bool
	}{
		{
			name:       "files only",
			wantSecret: "from-user-file",
			embedded:   true,
		},
		{
			name: "environment wins",
			env: map[string]string{
				EnvJWTSecret: "from-env",
				EnvNATSURL:   "nats://nats.prod:4222",
			},
			wantSecret: "from-env",
			wantNATS:   "nats://nats.prod:4222",
			embedded:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := testLoader(t, home, nested, tt.env).Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Model.Temperature != 0.9 {
				t.Errorf("expected user temperature 0.9, got %f", cfg.Model.Temperature)
			}
			if cfg.HTTP.Addr != ":7000" {
				t.Errorf("expected project addr to win, got %q", cfg.HTTP.Addr)
			}
			if cfg.Pipeline.MaxRegenIterations != 2 {
				t.Errorf("expected 2 iterations, got %d", cfg.Pipeline.MaxRegenIterations)
			}
			if cfg.Pipeline.MaxCandidates != 12 {
				t.Errorf("expected default max candidates, got %d", cfg.Pipeline.MaxCandidates)
			}
			if cfg.Auth.JWTSecret != tt.wantSecret {
				t.Errorf("expected secret %q, got %q", tt.wantSecret, cfg.Auth.JWTSecret)
			}
			if cfg.Storage.NATS.URL != tt.wantNATS || cfg.Storage.NATS.Embedded != tt.embedded {
				t.Errorf("unexpected NATS config %+v", cfg.Storage.NATS)
			}
		})
	}
}

func TestLoaderNoFiles(t *testing.T) {
	cfg, err := testLoader(t, t.TempDir(), t.TempDir(), nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected defaults, got addr %q", cfg.HTTP.Addr)
	}
}

func TestLoaderInvalidProjectConfig(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, ProjectConfigFile), `
generation:
  backend: telegraph
`)
	if _, err := testLoader(t, t.TempDir(), project, nil).Load(); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := testLoader(t, home, t.TempDir(), nil)

	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	if _, err := LoadFromFile(path); err != nil {
		t.Fatalf("created config does not load: %v", err)
	}
	// Second call leaves the file alone.
	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() second call error = %v", err)
	}
}
