package main

import (
	"fmt"
	"time"

	"github.com/kbukum/resilience-core/auth"
	"github.com/kbukum/resilience-core/config"
	"github.com/kbukum/resilience-core/database"
	"github.com/kbukum/resilience-core/delivery"
	"github.com/kbukum/resilience-core/observability"
	"github.com/kbukum/resilience-core/ratelimit"
	"github.com/kbukum/resilience-core/redis"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/server"
	"github.com/kbukum/resilience-core/transport/email"
	"github.com/kbukum/resilience-core/transport/export"
	"github.com/kbukum/resilience-core/transport/payment"
	"github.com/kbukum/resilience-core/transport/webhook"
)

// Config is the resilienced service configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Database      database.Config          `yaml:"database" mapstructure:"database"`
	Redis         redis.Config             `yaml:"redis" mapstructure:"redis"`
	Server        server.Config            `yaml:"server" mapstructure:"server"`
	Delivery      delivery.Config          `yaml:"delivery" mapstructure:"delivery"`
	Breakers      map[string]BreakerConfig `yaml:"breakers" mapstructure:"breakers"`
	RateLimit     RateLimitConfig          `yaml:"ratelimit" mapstructure:"ratelimit"`
	Auth          auth.Config              `yaml:"auth" mapstructure:"auth"`
	Observability observability.Config     `yaml:"observability" mapstructure:"observability"`
	Transports    TransportsConfig         `yaml:"transports" mapstructure:"transports"`
}

// BreakerConfig configures the breaker guarding one dependency. The key in
// Config.Breakers is the dependency name.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Window           string `yaml:"window" mapstructure:"window"`
	Recovery         string `yaml:"recovery" mapstructure:"recovery"`
	HalfOpenMaxCalls int    `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
}

// RateLimitConfig enables the adaptive limiter on the public API.
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	ratelimit.Config `yaml:",inline" mapstructure:",squash"`
}

// TransportsConfig holds one section per delivery transport. A disabled
// transport leaves its kind unrouted, so items of that kind dead-letter.
type TransportsConfig struct {
	Webhook WebhookTransport `yaml:"webhook" mapstructure:"webhook"`
	Email   EmailTransport   `yaml:"email" mapstructure:"email"`
	Export  ExportTransport  `yaml:"export" mapstructure:"export"`
	Payment PaymentTransport `yaml:"payment" mapstructure:"payment"`
}

type WebhookTransport struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	webhook.Config `yaml:",inline" mapstructure:",squash"`
}

type EmailTransport struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	email.Config `yaml:",inline" mapstructure:",squash"`
}

type ExportTransport struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	export.Config `yaml:",inline" mapstructure:",squash"`
}

// PaymentTransport configures the payment provider used by checkout and by
// compensation. Dependency names its breaker.
type PaymentTransport struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Dependency     string `yaml:"dependency" mapstructure:"dependency"`
	payment.Config `yaml:",inline" mapstructure:",squash"`
}

// ApplyDefaults fills zero values in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Delivery.ApplyDefaults()
	c.RateLimit.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.Transports.Email.ApplyDefaults()
	c.Transports.Export.ApplyDefaults()
	if c.Transports.Payment.Dependency == "" {
		c.Transports.Payment.Dependency = "stripe"
	}
}

// Validate checks every enabled section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if !c.Database.Enabled {
		return fmt.Errorf("database: the outbox requires a database")
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", c.Database.Validate},
		{"redis", c.Redis.Validate},
		{"server", c.Server.Validate},
		{"delivery", c.Delivery.Validate},
		{"ratelimit", c.RateLimit.Validate},
		{"auth", c.Auth.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	for name, b := range c.Breakers {
		if _, err := b.toResilience(name); err != nil {
			return fmt.Errorf("breakers.%s: %w", name, err)
		}
	}
	if t := c.Transports.Email; t.Enabled {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if t := c.Transports.Export; t.Enabled {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	if t := c.Transports.Payment; t.Enabled {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// breakerConfigs converts the configured breakers for resilience.NewRegistry.
func (c *Config) breakerConfigs() map[string]resilience.CircuitBreakerConfig {
	out := make(map[string]resilience.CircuitBreakerConfig, len(c.Breakers))
	for name, b := range c.Breakers {
		cfg, _ := b.toResilience(name)
		out[name] = cfg
	}
	return out
}

func (b BreakerConfig) toResilience(name string) (resilience.CircuitBreakerConfig, error) {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	if b.FailureThreshold < 0 || b.HalfOpenMaxCalls < 0 {
		return cfg, fmt.Errorf("failure_threshold and half_open_max_calls must not be negative")
	}
	if b.FailureThreshold > 0 {
		cfg.FailureThreshold = b.FailureThreshold
	}
	if b.HalfOpenMaxCalls > 0 {
		cfg.HalfOpenMaxCalls = b.HalfOpenMaxCalls
	}
	var err error
	if cfg.Window, err = durationOr(b.Window, cfg.Window); err != nil {
		return cfg, fmt.Errorf("window: %w", err)
	}
	if cfg.Recovery, err = durationOr(b.Recovery, cfg.Recovery); err != nil {
		return cfg, fmt.Errorf("recovery: %w", err)
	}
	return cfg, nil
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
