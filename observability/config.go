package observability

import (
	"fmt"
	"time"
)

// Config configures OTLP export of traces and metrics.
type Config struct {
	// Enabled turns on both exporters. When false Init installs nothing and
	// the global no-op providers stay in place.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the metric export interval (e.g. "15s").
	Interval string `yaml:"interval" mapstructure:"interval"`
	// SampleRate is the trace sampling ratio between 0 and 1.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval == "" {
		c.Interval = "15s"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("observability: endpoint is required")
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return fmt.Errorf("observability: invalid interval %q", c.Interval)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("observability: sample_rate must be within [0, 1], got %v", c.SampleRate)
	}
	return nil
}

func (c *Config) interval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 15 * time.Second
	}
	return d
}
