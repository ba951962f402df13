package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Delivery      struct {
		PollInterval string `mapstructure:"poll_interval"`
		BatchSize    int    `mapstructure:"batch_size"`
	} `mapstructure:"delivery"`
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	cfg := ServiceConfig{Name: "svc"}
	cfg.ApplyDefaults()

	if cfg.Environment != "development" || !cfg.Debug {
		t.Errorf("expected development defaults, got %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging in development, got %q", cfg.Logging.Level)
	}
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"missing name", ServiceConfig{Environment: "production"}, "config.name"},
		{"bad environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment"},
		{"valid", ServiceConfig{Name: "svc", Environment: "production"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfigWithYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	yamlContent := `
name: resilienced
environment: staging
delivery:
  poll_interval: 1s
  batch_size: 50
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("RESILIENCED_TEST_DELIVERY__BATCH_SIZE", "25")

	var cfg testConfig
	err := LoadConfig("resilienced-test", &cfg, WithConfigFile(configPath), WithEnvFile(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "resilienced" || cfg.Environment != "staging" {
		t.Errorf("unexpected base config: %+v", cfg.ServiceConfig)
	}
	if cfg.Delivery.PollInterval != "1s" {
		t.Errorf("expected poll_interval from file, got %q", cfg.Delivery.PollInterval)
	}
	if cfg.Delivery.BatchSize != 25 {
		t.Errorf("expected env override of batch_size, got %d", cfg.Delivery.BatchSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testConfig
	fs := &mockFS{files: map[string]bool{}}

	if err := LoadConfig("nonexistent-service", &cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("expected LoadConfig to succeed with no files, got %v", err)
	}
}

func TestFindFileUsesServiceDirectoryFirst(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/resilienced/config.yml": true,
		"./config.yml":                 true,
	}}

	if got := findFile(fs, configCandidates("resilienced")); got != "./cmd/resilienced/config.yml" {
		t.Errorf("expected service config, got %q", got)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }
