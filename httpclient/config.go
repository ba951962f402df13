package httpclient

import (
	"fmt"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config configures the HTTP client.
type Config struct {
	// BaseURL is prepended to relative request paths.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds one request, on top of the caller's context deadline.
	Timeout time.Duration `mapstructure:"timeout"`

	// Auth is applied to every request unless the request overrides it.
	Auth *AuthConfig `mapstructure:"-"`

	// Headers are sent with every request.
	Headers map[string]string `mapstructure:"headers"`

	// UserAgent defaults to "resilience-core".
	UserAgent string `mapstructure:"user_agent"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = "resilience-core"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	return nil
}
