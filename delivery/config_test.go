package delivery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	s := cfg.settings()
	if s.pollInterval != time.Second || s.callTimeout != 500*time.Millisecond {
		t.Errorf("poll=%s call=%s", s.pollInterval, s.callTimeout)
	}
	if cfg.BatchSize != 50 || cfg.MaxAttempts != 8 || cfg.Concurrency != 8 || cfg.DependencyConcurrency != 8 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if s.backoff.Base != 2*time.Second || s.backoff.Max != 10*time.Minute || !s.backoff.Jitter {
		t.Errorf("unexpected backoff %+v", s.backoff)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"call timeout not below poll", func(c *Config) { c.CallTimeout = "1s" }, "call_timeout"},
		{"bad duration", func(c *Config) { c.PollInterval = "soon" }, "poll_interval"},
		{"base above max", func(c *Config) { c.BaseBackoff = "1h" }, "base_backoff"},
		{"stale below call timeout", func(c *Config) { c.StaleClaimAfter = "100ms" }, "stale_claim_after"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{}
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestRouterResolve(t *testing.T) {
	noop := TransportFunc(func(ctx context.Context, item *outbox.Item) error { return nil })
	r := NewRouter(
		Route{Kind: outbox.KindWebhook, Transport: noop},
		Route{Kind: outbox.KindCompensation, Dependency: "stripe", Transport: noop},
	)

	route, err := r.Resolve(outbox.KindWebhook)
	if err != nil || route.Dependency != "webhook" {
		t.Errorf("webhook route = %+v, %v", route, err)
	}
	if _, err := r.Resolve(outbox.KindEmail); !resilience.IsPermanent(err) {
		t.Errorf("unknown kind must be permanent, got %v", err)
	}
	if deps := r.Dependencies(); len(deps) != 2 || deps[0] != "webhook" || deps[1] != "stripe" {
		t.Errorf("dependencies = %v", deps)
	}
}
