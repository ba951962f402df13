package export

import (
	"errors"
	"fmt"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Config configures the S3 export target.
type Config struct {
	// Bucket is the default bucket; a payload may name its own.
	Bucket string `mapstructure:"bucket"`

	Region string `mapstructure:"region"`

	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO).
	Endpoint string `mapstructure:"endpoint"`

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// ForcePathStyle forces path-style URLs. Implied by a custom Endpoint.
	ForcePathStyle bool `mapstructure:"force_path_style"`

	// KeyPrefix is prepended to every object key.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("access_key and secret_key must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("export: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
