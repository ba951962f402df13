package delivery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/kbukum/resilience-core/component"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	store    *outbox.GormStore
	clock    *testclock.Clock
	breakers *resilience.Registry
}

func testConfig() Config {
	jitter := false
	return Config{
		PollInterval: "1s",
		CallTimeout:  "500ms",
		MaxAttempts:  3,
		BaseBackoff:  "2s",
		MaxBackoff:   "1m",
		Jitter:       &jitter,
		Concurrency:  4,
	}
}

func newHarness(t *testing.T, router *Router, cfg Config, breakers map[string]resilience.CircuitBreakerConfig) *harness {
	t.Helper()
	db := testutil.NewSQLite(t, outbox.Models()...)

	clk := testclock.NewClock(epoch)
	store := outbox.NewGormStore(db.GormDB, outbox.WithClock(clk), outbox.WithLogger(logger.Nop()))
	registry := resilience.NewRegistry(breakers, resilience.WithClock(clk))
	engine, err := NewEngine(store, router, registry, cfg, WithClock(clk), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &harness{engine: engine, store: store, clock: clk, breakers: registry}
}

func (h *harness) enqueue(t *testing.T, key string, kind outbox.Kind) *outbox.Item {
	t.Helper()
	item, _, err := h.store.Enqueue(context.Background(), outbox.EnqueueRequest{
		TenantID: "t1", DedupeKey: key, Kind: kind, Payload: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return item
}

func (h *harness) tick(t *testing.T) TickResult {
	t.Helper()
	res, err := h.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return res
}

func (h *harness) get(t *testing.T, id string) *outbox.Item {
	t.Helper()
	item, err := h.store.Get(context.Background(), "t1", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return item
}

// scripted returns the errors in order, then nil forever.
func scripted(calls *int32, errs ...error) Transport {
	return TransportFunc(func(ctx context.Context, item *outbox.Item) error {
		n := int(atomic.AddInt32(calls, 1))
		if n <= len(errs) {
			return errs[n-1]
		}
		return nil
	})
}

func TestWebhookFailsTwiceThenDelivered(t *testing.T) {
	var calls int32
	unavailable := resilience.Retryable(errors.New("503 service unavailable"))
	router := NewRouter(Route{Kind: outbox.KindWebhook, Dependency: "webhook", Transport: scripted(&calls, unavailable, unavailable)})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "order-1", outbox.KindWebhook)

	if res := h.tick(t); res.Claimed != 1 || res.Retried != 1 {
		t.Fatalf("first tick = %+v", res)
	}
	got := h.get(t, item.ID)
	if got.Attempts != 1 || !got.NextAttemptAt.Equal(epoch.Add(2*time.Second)) {
		t.Fatalf("after first failure: attempts=%d next=%s", got.Attempts, got.NextAttemptAt)
	}

	if res := h.tick(t); res.Claimed != 0 {
		t.Fatalf("item must not be due before its backoff, got %+v", res)
	}

	h.clock.Advance(2 * time.Second)
	if res := h.tick(t); res.Retried != 1 {
		t.Fatalf("second tick = %+v", res)
	}
	got = h.get(t, item.ID)
	if got.Attempts != 2 || !got.NextAttemptAt.Equal(epoch.Add(6*time.Second)) {
		t.Fatalf("after second failure: attempts=%d next=%s", got.Attempts, got.NextAttemptAt)
	}

	h.clock.Advance(4 * time.Second)
	if res := h.tick(t); res.Delivered != 1 {
		t.Fatalf("third tick = %+v", res)
	}
	got = h.get(t, item.ID)
	if got.Status != outbox.StatusDelivered || got.Attempts != 3 || got.LastError != "" {
		t.Errorf("final item %+v", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 transport calls, got %d", calls)
	}
}

func TestDeadLetterExactlyAtMaxAttempts(t *testing.T) {
	var calls int32
	fail := errors.New("connection reset")
	router := NewRouter(Route{Kind: outbox.KindEmail, Dependency: "email", Transport: scripted(&calls, fail, fail, fail, fail)})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "welcome-1", outbox.KindEmail)

	for i := 1; i < 3; i++ {
		h.tick(t)
		if got := h.get(t, item.ID); got.Status != outbox.StatusPending || got.Attempts != i {
			t.Fatalf("after %d failures: %+v", i, got)
		}
		h.clock.Advance(time.Minute)
	}

	if res := h.tick(t); res.Dead != 1 {
		t.Fatalf("third failure must dead-letter, got %+v", res)
	}
	got := h.get(t, item.ID)
	if got.Status != outbox.StatusDead || got.Attempts != 3 || got.LastError != "connection reset" {
		t.Errorf("dead item %+v", got)
	}

	h.clock.Advance(time.Hour)
	if res := h.tick(t); res.Claimed != 0 {
		t.Errorf("dead items must not be claimed, got %+v", res)
	}
}

func TestPermanentErrorDeadLettersImmediately(t *testing.T) {
	var calls int32
	router := NewRouter(Route{Kind: outbox.KindWebhook, Dependency: "webhook",
		Transport: scripted(&calls, resilience.Permanent(errors.New("400 bad request")))})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "order-1", outbox.KindWebhook)

	if res := h.tick(t); res.Dead != 1 {
		t.Fatalf("tick = %+v", res)
	}
	got := h.get(t, item.ID)
	if got.Status != outbox.StatusDead || got.Attempts != 1 || !strings.Contains(got.LastError, "400 bad request") {
		t.Errorf("dead item %+v", got)
	}
	if snap := h.breakers.Get("webhook").Snapshot(); snap.Failures != 0 {
		t.Errorf("permanent errors must not count against the breaker, failures=%d", snap.Failures)
	}
}

func TestUnknownKindDeadLetters(t *testing.T) {
	h := newHarness(t, NewRouter(), testConfig(), nil)
	item := h.enqueue(t, "export-1", outbox.KindExport)

	if res := h.tick(t); res.Dead != 1 {
		t.Fatalf("tick = %+v", res)
	}
	if got := h.get(t, item.ID); !strings.Contains(got.LastError, `no transport for kind "export"`) {
		t.Errorf("unexpected last error %q", got.LastError)
	}
}

func TestOpenBreakerSkipsTransport(t *testing.T) {
	var calls int32
	fail := errors.New("timeout talking to smtp")
	router := NewRouter(Route{Kind: outbox.KindEmail, Dependency: "email", Transport: scripted(&calls, fail)})
	breakers := map[string]resilience.CircuitBreakerConfig{
		"email": {FailureThreshold: 1, Window: time.Minute, Recovery: 30 * time.Second},
	}
	cfg := testConfig()
	cfg.Concurrency = 1
	h := newHarness(t, router, cfg, breakers)
	first := h.enqueue(t, "a", outbox.KindEmail)

	h.tick(t)
	if state := h.breakers.Get("email").State(); state != resilience.StateOpen {
		t.Fatalf("breaker should be open, got %s", state)
	}

	second := h.enqueue(t, "b", outbox.KindEmail)
	h.clock.Advance(2 * time.Second)
	if res := h.tick(t); res.Claimed != 2 || res.Retried != 2 {
		t.Fatalf("tick with open breaker = %+v", res)
	}
	if calls != 1 {
		t.Errorf("open breaker must not invoke the transport, calls=%d", calls)
	}
	for _, id := range []string{first.ID, second.ID} {
		got := h.get(t, id)
		if got.Status != outbox.StatusPending || !strings.Contains(got.LastError, "circuit breaker is open") {
			t.Errorf("item %s: %+v", id, got)
		}
	}
	if got := h.get(t, first.ID); got.Attempts != 2 {
		t.Errorf("breaker-open attempt must count, attempts=%d", got.Attempts)
	}

	// After recovery the half-open probe goes through and closes the breaker.
	h.clock.Advance(time.Minute)
	if res := h.tick(t); res.Delivered != 2 {
		t.Fatalf("tick after recovery = %+v", res)
	}
	if state := h.breakers.Get("email").State(); state != resilience.StateClosed {
		t.Errorf("breaker should close after a successful probe, got %s", state)
	}
}

func TestReplayedItemIsDeliveredOnNextTick(t *testing.T) {
	var calls int32
	router := NewRouter(Route{Kind: outbox.KindWebhook, Dependency: "webhook",
		Transport: scripted(&calls, resilience.Permanent(errors.New("410 gone")))})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "order-1", outbox.KindWebhook)
	h.tick(t)

	if _, err := h.store.Replay(context.Background(), "t1", item.ID, "ops@example"); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res := h.tick(t); res.Delivered != 1 {
		t.Fatalf("tick after replay = %+v", res)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusDelivered || got.Attempts != 2 {
		t.Errorf("replayed item %+v", got)
	}
}

func TestReplayedItemGetsOneMoreAttempt(t *testing.T) {
	var calls int32
	fail := errors.New("503")
	router := NewRouter(Route{Kind: outbox.KindWebhook, Dependency: "webhook", Transport: scripted(&calls, fail, fail, fail, fail)})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "order-1", outbox.KindWebhook)
	for i := 0; i < 3; i++ {
		h.tick(t)
		h.clock.Advance(time.Minute)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusDead {
		t.Fatalf("expected dead item, got %+v", got)
	}

	if _, err := h.store.Replay(context.Background(), "t1", item.ID, "ops@example"); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res := h.tick(t); res.Dead != 1 {
		t.Fatalf("failed replay must dead-letter again, got %+v", res)
	}
	if got := h.get(t, item.ID); got.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", got.Attempts)
	}
}

func TestCanceledTickReleasesUnstartedClaims(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	transport := TransportFunc(func(callCtx context.Context, item *outbox.Item) error {
		atomic.AddInt32(&calls, 1)
		cancel()
		if callCtx.Err() != nil {
			return callCtx.Err()
		}
		return nil
	})
	cfg := testConfig()
	cfg.Concurrency = 1
	h := newHarness(t, NewRouter(Route{Kind: outbox.KindWebhook, Transport: transport}), cfg, nil)
	first := h.enqueue(t, "a", outbox.KindWebhook)
	second := h.enqueue(t, "b", outbox.KindWebhook)

	res, err := h.engine.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Claimed != 2 || res.Delivered != 1 || res.Released != 1 {
		t.Fatalf("tick = %+v", res)
	}
	if calls != 1 {
		t.Errorf("expected one transport call, got %d", calls)
	}

	states := map[outbox.Status]int{}
	for _, id := range []string{first.ID, second.ID} {
		got := h.get(t, id)
		states[got.Status]++
		if got.Status == outbox.StatusPending && got.Attempts != 0 {
			t.Errorf("released item must keep its attempts, got %d", got.Attempts)
		}
	}
	if states[outbox.StatusDelivered] != 1 || states[outbox.StatusPending] != 1 {
		t.Errorf("unexpected states %v", states)
	}

	if _, err := h.engine.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick on canceled ctx = %v, want context.Canceled", err)
	}
}

func TestTickReleasesStaleClaims(t *testing.T) {
	var calls int32
	h := newHarness(t, NewRouter(Route{Kind: outbox.KindWebhook, Transport: scripted(&calls)}), testConfig(), nil)
	item := h.enqueue(t, "a", outbox.KindWebhook)

	// An engine that died mid-batch left this claim behind.
	if _, err := h.store.ClaimDue(context.Background(), 10, h.clock.Now()); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if res := h.tick(t); res.Claimed != 0 {
		t.Fatalf("fresh claims must be left alone, got %+v", res)
	}

	h.clock.Advance(6 * time.Minute)
	res := h.tick(t)
	if res.Stale != 1 || res.Delivered != 1 {
		t.Fatalf("tick = %+v", res)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusDelivered {
		t.Errorf("item %+v", got)
	}
}

func TestCallTimeoutIsAFailure(t *testing.T) {
	slow := TransportFunc(func(ctx context.Context, item *outbox.Item) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := testConfig()
	cfg.CallTimeout = "20ms"
	h := newHarness(t, NewRouter(Route{Kind: outbox.KindWebhook, Transport: slow}), cfg, nil)
	item := h.enqueue(t, "a", outbox.KindWebhook)

	if res := h.tick(t); res.Retried != 1 {
		t.Fatalf("tick = %+v", res)
	}
	if got := h.get(t, item.ID); !strings.Contains(got.LastError, "deadline exceeded") {
		t.Errorf("last error %q", got.LastError)
	}
	if snap := h.breakers.Get("webhook").Snapshot(); snap.Failures != 1 {
		t.Errorf("timeouts count against the breaker, failures=%d", snap.Failures)
	}
}

type failingStore struct {
	Store
	err error
}

func (s *failingStore) ReleaseStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *failingStore) ClaimDue(context.Context, int, time.Time) ([]*outbox.Item, error) {
	return nil, s.err
}

func TestStoreErrorIsReturnedAndRecorded(t *testing.T) {
	store := &failingStore{err: errors.New("database is closed")}
	engine, err := NewEngine(store, NewRouter(), resilience.NewRegistry(nil), testConfig(), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := engine.Tick(context.Background()); !errors.Is(err, store.err) {
		t.Fatalf("Tick error = %v", err)
	}
	if !errors.Is(engine.LastError(), store.err) {
		t.Errorf("LastError = %v", engine.LastError())
	}

	store.err = nil
	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if engine.LastError() != nil {
		t.Errorf("a clean tick must clear the error, got %v", engine.LastError())
	}
}

// interruptedClaimStore claims through the real store, then reports a failure
// once, as if the connection dropped partway through the batch.
type interruptedClaimStore struct {
	*outbox.GormStore
	err error
}

func (s *interruptedClaimStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*outbox.Item, error) {
	items, err := s.GormStore.ClaimDue(ctx, limit, now)
	if err != nil || s.err == nil {
		return items, err
	}
	err, s.err = s.err, nil
	return items, err
}

func TestInterruptedClaimReleasesClaimedItems(t *testing.T) {
	var calls int32
	router := NewRouter(Route{Kind: outbox.KindWebhook, Dependency: "webhook", Transport: scripted(&calls)})
	h := newHarness(t, router, testConfig(), nil)
	item := h.enqueue(t, "order-1", outbox.KindWebhook)

	errReset := errors.New("connection reset")
	store := &interruptedClaimStore{GormStore: h.store, err: errReset}
	engine, err := NewEngine(store, router, h.breakers, testConfig(), WithClock(h.clock), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res, err := engine.Tick(context.Background())
	if !errors.Is(err, errReset) {
		t.Fatalf("Tick error = %v", err)
	}
	if res.Released != 1 {
		t.Errorf("released = %d, want 1", res.Released)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusPending || got.Attempts != 0 {
		t.Fatalf("after interrupted claim: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if calls != 0 {
		t.Errorf("transport called %d times during a failed claim", calls)
	}

	res, err = engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Claimed != 1 || res.Delivered != 1 {
		t.Errorf("retry tick = %+v", res)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
}

func TestComponentLifecycle(t *testing.T) {
	var calls int32
	h := newHarness(t, NewRouter(Route{Kind: outbox.KindWebhook, Transport: scripted(&calls)}), testConfig(), nil)
	item := h.enqueue(t, "a", outbox.KindWebhook)
	c := NewComponent(h.engine)

	if got := c.Health(context.Background()); got.Status != component.StatusUnhealthy {
		t.Errorf("health before start = %+v", got)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start must fail")
	}

	// The first tick runs right away; wait for it to park on the poll timer.
	if err := h.clock.WaitAdvance(time.Second, 5*time.Second, 1); err != nil {
		t.Fatalf("engine never reached the poll wait: %v", err)
	}
	if got := h.get(t, item.ID); got.Status != outbox.StatusDelivered {
		t.Errorf("item %+v", got)
	}
	if got := c.Health(context.Background()); got.Status != component.StatusHealthy {
		t.Errorf("health while running = %+v", got)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
