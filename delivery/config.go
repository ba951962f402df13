package delivery

import (
	"fmt"
	"time"

	"github.com/kbukum/resilience-core/resilience"
)

// Config configures the delivery Engine.
type Config struct {
	// PollInterval is the pause between ticks (e.g. "1s").
	PollInterval string `mapstructure:"poll_interval"`

	// BatchSize bounds the number of items claimed per tick.
	BatchSize int `mapstructure:"batch_size"`

	// MaxAttempts dead-letters an item once this many attempts have failed.
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseBackoff and MaxBackoff bound the exponential retry delay.
	BaseBackoff string `mapstructure:"base_backoff"`
	MaxBackoff  string `mapstructure:"max_backoff"`

	// Jitter adds up to 10% random delay. Defaults to true.
	Jitter *bool `mapstructure:"jitter"`

	// CallTimeout is the deadline of one transport call. It must be shorter
	// than PollInterval; defaults to half of it.
	CallTimeout string `mapstructure:"call_timeout"`

	// Concurrency bounds parallel deliveries within a batch.
	Concurrency int `mapstructure:"concurrency"`

	// DependencyConcurrency bounds parallel calls into one dependency.
	DependencyConcurrency int `mapstructure:"dependency_concurrency"`

	// StaleClaimAfter releases claims older than this at the start of a tick.
	StaleClaimAfter string `mapstructure:"stale_claim_after"`

	// ShutdownTimeout bounds how long Stop waits for in-flight deliveries.
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = "1s"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff == "" {
		c.BaseBackoff = "2s"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "10m"
	}
	if c.Jitter == nil {
		jitter := true
		c.Jitter = &jitter
	}
	if c.CallTimeout == "" {
		if poll, err := time.ParseDuration(c.PollInterval); err == nil {
			c.CallTimeout = (poll / 2).String()
		}
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.DependencyConcurrency <= 0 {
		c.DependencyConcurrency = c.Concurrency
	}
	if c.StaleClaimAfter == "" {
		c.StaleClaimAfter = "5m"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "10s"
	}
}

// Validate checks durations and their ordering.
func (c *Config) Validate() error {
	durations := map[string]string{
		"poll_interval":     c.PollInterval,
		"base_backoff":      c.BaseBackoff,
		"max_backoff":       c.MaxBackoff,
		"call_timeout":      c.CallTimeout,
		"stale_claim_after": c.StaleClaimAfter,
		"shutdown_timeout":  c.ShutdownTimeout,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid delivery.%s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("delivery.%s must be > 0", name)
		}
	}
	s := c.settings()
	if s.callTimeout >= s.pollInterval {
		return fmt.Errorf("delivery.call_timeout (%s) must be shorter than poll_interval (%s)", s.callTimeout, s.pollInterval)
	}
	if s.backoff.Base > s.backoff.Max {
		return fmt.Errorf("delivery.base_backoff must not exceed max_backoff")
	}
	if s.staleClaimAfter <= s.callTimeout {
		return fmt.Errorf("delivery.stale_claim_after must exceed call_timeout")
	}
	if c.BatchSize <= 0 || c.MaxAttempts <= 0 || c.Concurrency <= 0 {
		return fmt.Errorf("delivery batch_size, max_attempts and concurrency must be > 0")
	}
	return nil
}

type settings struct {
	pollInterval    time.Duration
	callTimeout     time.Duration
	staleClaimAfter time.Duration
	shutdownTimeout time.Duration
	backoff         resilience.Backoff
}

func (c *Config) settings() settings {
	poll, _ := time.ParseDuration(c.PollInterval)
	call, _ := time.ParseDuration(c.CallTimeout)
	stale, _ := time.ParseDuration(c.StaleClaimAfter)
	shutdown, _ := time.ParseDuration(c.ShutdownTimeout)
	base, _ := time.ParseDuration(c.BaseBackoff)
	maxBackoff, _ := time.ParseDuration(c.MaxBackoff)
	return settings{
		pollInterval:    poll,
		callTimeout:     call,
		staleClaimAfter: stale,
		shutdownTimeout: shutdown,
		backoff: resilience.Backoff{
			Base:   base,
			Max:    maxBackoff,
			Jitter: c.Jitter != nil && *c.Jitter,
		},
	}
}
