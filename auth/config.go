package auth

import (
	"fmt"

	"github.com/kbukum/resilience-core/auth/jwt"
)

// Config holds operator authentication configuration for the admin API.
type Config struct {
	// Enabled controls whether admin routes require an operator token.
	Enabled bool `mapstructure:"enabled"`

	JWT jwt.Config `mapstructure:"jwt"`
}

// ApplyDefaults sets defaults for the JWT settings.
func (c *Config) ApplyDefaults() {
	c.JWT.ApplyDefaults()
}

// Validate checks the JWT settings when auth is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.JWT.Validate(); err != nil {
		return fmt.Errorf("auth.jwt: %w", err)
	}
	return nil
}
