package ratelimit

import (
	"fmt"
	"time"
)

// Config configures AdaptiveLimiter.
type Config struct {
	// Limit is the number of requests allowed per key per window.
	Limit int `mapstructure:"limit"`

	// Window is the fixed window length (e.g. "60s").
	Window string `mapstructure:"window"`

	// FailOpen bounds how long one fallback period lasts (e.g. "30s").
	FailOpen string `mapstructure:"fail_open"`

	// ProbeInterval is how often the shared store is probed during fallback.
	ProbeInterval string `mapstructure:"probe_interval"`

	// StoreTimeout bounds each call to the shared store.
	StoreTimeout string `mapstructure:"store_timeout"`

	// KeyPrefix namespaces counter keys in the shared store.
	KeyPrefix string `mapstructure:"key_prefix"`

	// MaxFallbackKeys caps the number of keys tracked in memory.
	MaxFallbackKeys int `mapstructure:"max_fallback_keys"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.Window == "" {
		c.Window = "60s"
	}
	if c.FailOpen == "" {
		c.FailOpen = "30s"
	}
	if c.ProbeInterval == "" {
		c.ProbeInterval = "5s"
	}
	if c.StoreTimeout == "" {
		c.StoreTimeout = "100ms"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ratelimit"
	}
	if c.MaxFallbackKeys <= 0 {
		c.MaxFallbackKeys = 10000
	}
}

// Validate checks that durations parse and are positive.
func (c *Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("ratelimit.limit must be > 0")
	}
	for name, v := range map[string]string{
		"window":         c.Window,
		"fail_open":      c.FailOpen,
		"probe_interval": c.ProbeInterval,
		"store_timeout":  c.StoreTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ratelimit.%s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("ratelimit.%s must be > 0", name)
		}
	}
	if w, _ := time.ParseDuration(c.Window); w < time.Second {
		return fmt.Errorf("ratelimit.window must be at least 1s")
	}
	return nil
}

type settings struct {
	limit        int64
	window       time.Duration
	failOpen     time.Duration
	probe        time.Duration
	storeTimeout time.Duration
	prefix       string
	maxKeys      int
}

func (c Config) settings() settings {
	window, _ := time.ParseDuration(c.Window)
	failOpen, _ := time.ParseDuration(c.FailOpen)
	probe, _ := time.ParseDuration(c.ProbeInterval)
	timeout, _ := time.ParseDuration(c.StoreTimeout)
	return settings{
		limit:        int64(c.Limit),
		window:       window,
		failOpen:     failOpen,
		probe:        probe,
		storeTimeout: timeout,
		prefix:       c.KeyPrefix,
		maxKeys:      c.MaxFallbackKeys,
	}
}
