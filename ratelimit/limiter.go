package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/resilience-core/logger"
)

// Mode tells which counter store served a decision.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Mode      Mode
}

// Status is a point-in-time view of the limiter for operators.
type Status struct {
	Mode          Mode          `json:"mode"`
	Limit         int64         `json:"limit"`
	Window        time.Duration `json:"window"`
	FallbackUntil *time.Time    `json:"fallback_until,omitempty"`
	NextProbeAt   *time.Time    `json:"next_probe_at,omitempty"`
	FallbackKeys  int           `json:"fallback_keys"`
}

// Option configures an AdaptiveLimiter.
type Option func(*AdaptiveLimiter)

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(l *AdaptiveLimiter) { l.clock = clk }
}

// WithLogger sets the logger used for mode transitions.
func WithLogger(log *logger.Logger) Option {
	return func(l *AdaptiveLimiter) { l.log = log.WithComponent("ratelimit") }
}

// WithModeChangeHook registers a callback fired on every mode transition.
func WithModeChangeHook(fn func(from, to Mode)) Option {
	return func(l *AdaptiveLimiter) { l.onModeChange = fn }
}

// AdaptiveLimiter checks requests against a shared store and degrades to an
// in-memory limiter while the store is failing.
type AdaptiveLimiter struct {
	store        Store
	memory       *MemoryLimiter
	cfg          settings
	clock        clock.Clock
	log          *logger.Logger
	onModeChange func(from, to Mode)

	mu            sync.Mutex
	mode          Mode
	fallbackUntil time.Time
	nextProbe     time.Time
}

// NewAdaptiveLimiter creates a limiter over store. A nil store runs the
// limiter permanently on its in-memory counters.
func NewAdaptiveLimiter(store Store, cfg Config, opts ...Option) *AdaptiveLimiter {
	cfg.ApplyDefaults()
	s := cfg.settings()
	l := &AdaptiveLimiter{
		store:  store,
		memory: NewMemoryLimiter(s.maxKeys),
		cfg:    s,
		clock:  clock.WallClock,
		log:    logger.WithComponent("ratelimit"),
		mode:   ModePrimary,
	}
	for _, opt := range opts {
		opt(l)
	}
	if store == nil {
		l.mode = ModeFallback
	}
	return l
}

// Allow reports whether a request for key may proceed.
func (l *AdaptiveLimiter) Allow(ctx context.Context, key string) bool {
	return l.Decide(ctx, key).Allowed
}

// Decide counts a request for key and returns the full decision.
func (l *AdaptiveLimiter) Decide(ctx context.Context, key string) Decision {
	now := l.clock.Now()
	index := windowIndex(now, l.cfg.window)

	if l.store == nil {
		return l.decide(l.memory.Incr(key, index), index, ModeFallback)
	}

	if l.usePrimary(ctx, now) {
		count, err := l.incrShared(ctx, key, index)
		if err == nil {
			return l.decide(count, index, ModePrimary)
		}
		l.enterFallback(now, err)
	}
	return l.decide(l.memory.Incr(key, index), index, ModeFallback)
}

// usePrimary decides whether this request goes to the shared store. During
// fallback at most one caller per probe interval probes the store; an expired
// fallback period is re-probed by the next request.
func (l *AdaptiveLimiter) usePrimary(ctx context.Context, now time.Time) bool {
	l.mu.Lock()
	if l.mode == ModePrimary {
		l.mu.Unlock()
		return true
	}
	expired := !now.Before(l.fallbackUntil)
	due := !now.Before(l.nextProbe)
	if !expired && !due {
		l.mu.Unlock()
		return false
	}
	l.nextProbe = now.Add(l.cfg.probe)
	l.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, l.cfg.storeTimeout)
	err := l.store.Ping(probeCtx)
	cancel()
	if err != nil {
		if expired {
			l.enterFallback(now, err)
		} else {
			l.log.Debug("Rate limit store probe failed", logger.Fields(logger.FieldError, err.Error()))
		}
		return false
	}

	l.resumePrimary()
	return true
}

func (l *AdaptiveLimiter) incrShared(ctx context.Context, key string, index int64) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, l.cfg.storeTimeout)
	defer cancel()
	return l.store.Incr(storeCtx, l.sharedKey(key, index), l.cfg.window)
}

func (l *AdaptiveLimiter) sharedKey(key string, index int64) string {
	return l.cfg.prefix + ":" + key + ":" + formatIndex(index)
}

// enterFallback starts a new fallback period unless one is already running.
func (l *AdaptiveLimiter) enterFallback(now time.Time, cause error) {
	l.mu.Lock()
	from := l.mode
	if from == ModeFallback && now.Before(l.fallbackUntil) {
		l.mu.Unlock()
		return
	}
	l.mode = ModeFallback
	l.fallbackUntil = now.Add(l.cfg.failOpen)
	l.nextProbe = now.Add(l.cfg.probe)
	until := l.fallbackUntil
	l.mu.Unlock()

	l.log.Warn("Rate limit store unavailable, using in-memory limiter", logger.Fields(
		logger.FieldError, cause.Error(),
		"fallback_until", until,
	))
	l.notify(from, ModeFallback)
}

func (l *AdaptiveLimiter) resumePrimary() {
	l.mu.Lock()
	from := l.mode
	l.mode = ModePrimary
	l.fallbackUntil = time.Time{}
	l.nextProbe = time.Time{}
	l.mu.Unlock()

	if from == ModePrimary {
		return
	}
	l.memory.Reset()
	l.log.Info("Rate limit store recovered, resuming shared limiter")
	l.notify(from, ModePrimary)
}

func (l *AdaptiveLimiter) notify(from, to Mode) {
	if l.onModeChange != nil && from != to {
		l.onModeChange(from, to)
	}
}

func (l *AdaptiveLimiter) decide(count, index int64, mode Mode) Decision {
	remaining := l.cfg.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.cfg.limit,
		Limit:     l.cfg.limit,
		Remaining: remaining,
		ResetAt:   windowEnd(index, l.cfg.window),
		Mode:      mode,
	}
}

// Mode returns the current mode.
func (l *AdaptiveLimiter) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Status returns the limiter state for the admin surface.
func (l *AdaptiveLimiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{
		Mode:         l.mode,
		Limit:        l.cfg.limit,
		Window:       l.cfg.window,
		FallbackKeys: l.memory.Len(),
	}
	if l.mode == ModeFallback && !l.fallbackUntil.IsZero() {
		until, probe := l.fallbackUntil, l.nextProbe
		st.FallbackUntil = &until
		st.NextProbeAt = &probe
	}
	return st
}
