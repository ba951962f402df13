package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/resilience-core/logger"
)

// Client wraps a go-redis client with structured logging.
type Client struct {
	rdb    *goredis.Client
	log    *logger.Logger
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// New creates a Redis client. It does not dial; go-redis connects lazily.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	opts := &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  parseDuration(cfg.DialTimeout),
		ReadTimeout:  parseDuration(cfg.ReadTimeout),
		WriteTimeout: parseDuration(cfg.WriteTimeout),
		PoolTimeout:  parseDuration(cfg.PoolTimeout),
	}
	if d := parseDuration(cfg.MinRetryBackoff); d > 0 {
		opts.MinRetryBackoff = d
	}
	if d := parseDuration(cfg.MaxRetryBackoff); d > 0 {
		opts.MaxRetryBackoff = d
	}
	if d := parseDuration(cfg.ConnMaxIdleTime); d > 0 {
		opts.ConnMaxIdleTime = d
	}

	log.Info("Redis client created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
	))
	return &Client{rdb: goredis.NewClient(opts), log: log, cfg: cfg}, nil
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Ping verifies the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Close closes the Redis connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.log.Info("Closing Redis connection")
	c.closed = true
	return c.rdb.Close()
}

// Unwrap returns the underlying go-redis client, e.g. to run scripts.
func (c *Client) Unwrap() *goredis.Client {
	return c.rdb
}
