package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// SigningMethod names a supported HMAC algorithm.
type SigningMethod string

const (
	HS256 SigningMethod = "HS256"
	HS384 SigningMethod = "HS384"
	HS512 SigningMethod = "HS512"
)

// Config configures the token service.
type Config struct {
	// Secret is the HMAC signing key.
	Secret string `mapstructure:"secret"`

	// Method is the signing algorithm (default: HS256).
	Method SigningMethod `mapstructure:"method"`

	// Issuer is the "iss" claim, checked on parse when set.
	Issuer string `mapstructure:"issuer"`

	// Audience is the "aud" claim, checked on parse when set.
	Audience string `mapstructure:"audience"`

	// TokenTTL is the lifetime of issued tokens (e.g. "1h").
	TokenTTL string `mapstructure:"token_ttl"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = HS256
	}
	if c.TokenTTL == "" {
		c.TokenTTL = "1h"
	}
}

// Validate checks the secret, method and TTL.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if len(c.Secret) < 32 {
		return errors.New("secret must be at least 32 bytes")
	}
	switch c.Method {
	case HS256, HS384, HS512:
	default:
		return fmt.Errorf("unsupported signing method %q", c.Method)
	}
	ttl, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid token_ttl: %w", err)
	}
	if ttl <= 0 {
		return errors.New("token_ttl must be > 0")
	}
	return nil
}

func (c *Config) ttl() time.Duration {
	d, _ := time.ParseDuration(c.TokenTTL)
	return d
}

func (c *Config) signingMethod() gojwt.SigningMethod {
	switch c.Method {
	case HS384:
		return gojwt.SigningMethodHS384
	case HS512:
		return gojwt.SigningMethodHS512
	default:
		return gojwt.SigningMethodHS256
	}
}
