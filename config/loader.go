package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts the file operations the loader needs (swapped in tests).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
	EnvPrefix  string // Defaults to the upper-cased service name
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = prefix }
}

// LoadConfig loads configuration for a service into cfg.
//
// Sources, lowest precedence first: the YAML config file, the .env file, the
// process environment. Environment keys are PREFIX_SECTION__FIELD, with a
// double underscore separating nesting levels:
//
//	RESILIENCED_DATABASE__DSN=postgres://...     -> database.dsn
//	RESILIENCED_DELIVERY__POLL_INTERVAL=2s       -> delivery.poll_interval
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: RealFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.EnvPrefix == "" {
		lc.EnvPrefix = envPrefix(serviceName)
	}
	if lc.ConfigFile == "" {
		lc.ConfigFile = findFile(lc.FileSystem, configCandidates(serviceName))
	}
	if lc.EnvFile == "" {
		lc.EnvFile = findFile(lc.FileSystem, envCandidates(serviceName))
	}

	v := viper.New()

	if lc.ConfigFile != "" && lc.FileSystem.Exists(lc.ConfigFile) {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", lc.ConfigFile, err)
		}
	}

	if lc.EnvFile != "" && lc.FileSystem.Exists(lc.EnvFile) {
		if err := lc.FileSystem.LoadEnv(lc.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", lc.EnvFile, err)
		}
	}

	bindEnv(v, lc.EnvPrefix, os.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// bindEnv copies PREFIX_* variables into v as nested keys.
func bindEnv(v *viper.Viper, prefix string, environ []string) {
	p := prefix + "_"
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, p) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(key, p))
		path = strings.ReplaceAll(path, "__", ".")
		if path != "" {
			v.Set(path, value)
		}
	}
}

func envPrefix(serviceName string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_"))
}

func configCandidates(serviceName string) []string {
	return []string{
		fmt.Sprintf("./cmd/%s/config.yml", serviceName),
		fmt.Sprintf("../cmd/%s/config.yml", serviceName),
		fmt.Sprintf("../../cmd/%s/config.yml", serviceName),
		"./config/config.yml",
		"./config.yml",
	}
}

func envCandidates(serviceName string) []string {
	return []string{
		fmt.Sprintf("./cmd/%s/.env", serviceName),
		fmt.Sprintf("../cmd/%s/.env", serviceName),
		fmt.Sprintf(".env.%s", serviceName),
		".env",
	}
}

func findFile(fs FileSystem, candidates []string) string {
	for _, path := range candidates {
		if fs.Exists(path) {
			return path
		}
	}
	return ""
}
