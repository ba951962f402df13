package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/testutil"
)

func TestRedisStoreIncrSetsTTL(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "ratelimit:k:1", time.Minute)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if got != want {
			t.Errorf("Incr = %d, want %d", got, want)
		}
	}
	if ttl := mr.TTL("ratelimit:k:1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(time.Minute)
	if mr.Exists("ratelimit:k:1") {
		t.Error("counter should expire with its window")
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestAdaptiveLimiterOverRedisOutage(t *testing.T) {
	mr, client := testutil.NewRedis(t, func(o *goredis.Options) {
		o.MaxRetries = -1
		o.DialTimeout = 50 * time.Millisecond
	})

	clk := testclock.NewClock(epoch)
	l := NewAdaptiveLimiter(NewRedisStore(client), Config{Limit: 5, Window: "60s", FailOpen: "30s", ProbeInterval: "5s", StoreTimeout: "200ms"},
		WithClock(clk), WithLogger(logger.Nop()))
	ctx := context.Background()

	if d := l.Decide(ctx, "tenant"); d.Mode != ModePrimary || !d.Allowed {
		t.Fatalf("expected primary decision, got %+v", d)
	}

	mr.SetError("LOADING dataset")
	if d := l.Decide(ctx, "tenant"); d.Mode != ModeFallback || !d.Allowed {
		t.Fatalf("expected fallback decision on store error, got %+v", d)
	}

	mr.SetError("")
	clk.Advance(5 * time.Second)
	if d := l.Decide(ctx, "tenant"); d.Mode != ModePrimary {
		t.Fatalf("expected resume within the probe interval, got %+v", d)
	}
}
