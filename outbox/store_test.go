package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/kbukum/resilience-core/database"
	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*GormStore, *testclock.Clock, *database.DB) {
	t.Helper()
	db := testutil.NewSQLite(t, Models()...)
	clk := testclock.NewClock(epoch)
	return NewGormStore(db.GormDB, WithClock(clk), WithLogger(logger.Nop())), clk, db
}

func enqueue(t *testing.T, s *GormStore, tenant, key string) *Item {
	t.Helper()
	item, created, err := s.Enqueue(context.Background(), EnqueueRequest{
		TenantID: tenant, DedupeKey: key, Kind: KindWebhook, Payload: []byte(`{"event":"x"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected %s/%s to be created", tenant, key)
	}
	return item
}

func claimOne(t *testing.T, s *GormStore, now time.Time) *Item {
	t.Helper()
	items, err := s.ClaimDue(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 claimed item, got %d", len(items))
	}
	return items[0]
}

func TestEnqueueIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, "t1", "order-1")
	if first.Status != StatusPending || first.Attempts != 0 || !first.NextAttemptAt.Equal(epoch) {
		t.Errorf("unexpected new item %+v", first)
	}

	again, created, err := s.Enqueue(ctx, EnqueueRequest{TenantID: "t1", DedupeKey: "order-1", Kind: KindEmail, Payload: []byte("other")})
	if err != nil {
		t.Fatalf("duplicate Enqueue: %v", err)
	}
	if created {
		t.Error("duplicate enqueue must not create")
	}
	if again.ID != first.ID || again.Kind != KindWebhook || string(again.Payload) != `{"event":"x"}` {
		t.Errorf("duplicate enqueue must return the existing item unchanged, got %+v", again)
	}

	// Same dedupe key under another tenant is a different item.
	other := enqueue(t, s, "t2", "order-1")
	if other.ID == first.ID {
		t.Error("dedupe keys are scoped per tenant")
	}
}

func TestEnqueueValidation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	for _, req := range []EnqueueRequest{
		{DedupeKey: "k", Kind: KindEmail},
		{TenantID: "t", Kind: KindEmail},
		{TenantID: "t", DedupeKey: "k", Kind: "sms"},
	} {
		if _, _, err := s.Enqueue(ctx, req); !errors.Is(err, ErrInvalidItem) {
			t.Errorf("Enqueue(%+v) = %v, want ErrInvalidItem", req, err)
		}
	}
}

func TestClaimDueRespectsScheduleAndLimit(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	enqueue(t, s, "t1", "a")
	enqueue(t, s, "t1", "b")
	_, _, err := s.Enqueue(ctx, EnqueueRequest{TenantID: "t1", DedupeKey: "later", Kind: KindEmail, NotBefore: epoch.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	items, err := s.ClaimDue(ctx, 10, epoch)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 due items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status != StatusClaimed || it.ClaimedAt == nil || it.Version != 1 {
			t.Errorf("unexpected claimed item %+v", it)
		}
	}

	if again, _ := s.ClaimDue(ctx, 10, epoch); len(again) != 0 {
		t.Errorf("claimed items must not be claimed twice, got %d", len(again))
	}
	if limited, _ := s.ClaimDue(ctx, 0, epoch.Add(2*time.Hour)); limited != nil {
		t.Error("limit 0 should claim nothing")
	}
	if later, _ := s.ClaimDue(ctx, 10, epoch.Add(2*time.Hour)); len(later) != 1 {
		t.Errorf("expected the delayed item once due, got %d", len(later))
	}
}

func TestConcurrentClaimIsExclusive(t *testing.T) {
	s, _, db := newTestStore(t)
	for i := 0; i < 20; i++ {
		enqueue(t, s, "t1", fmt.Sprintf("k-%d", i))
	}

	// Two engines sharing the database.
	engines := []*GormStore{s, NewGormStore(db.GormDB, WithLogger(logger.Nop()))}
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(store *GormStore) {
			defer wg.Done()
			for {
				items, err := store.ClaimDue(context.Background(), 3, epoch)
				if err != nil {
					t.Errorf("ClaimDue: %v", err)
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, it := range items {
					seen[it.ID]++
				}
				mu.Unlock()
			}
		}(engines[w%2])
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Errorf("expected all 20 items claimed, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("item %s claimed %d times", id, n)
		}
	}
}

func TestMarkTransitionsAreGuarded(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "t1", "a")
	item := claimOne(t, s, epoch)

	next := epoch.Add(2 * time.Second)
	if err := s.MarkFailed(ctx, item, errors.New("503 from upstream"), next); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	stored, _ := s.Get(ctx, "t1", item.ID)
	if stored.Status != StatusPending || stored.Attempts != 1 || !stored.NextAttemptAt.Equal(next) || stored.LastError != "503 from upstream" {
		t.Errorf("unexpected item after MarkFailed %+v", stored)
	}

	// Not claimed any more: every mark must be rejected.
	if err := s.MarkDelivered(ctx, item); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkDelivered on pending = %v, want ErrInvalidState", err)
	}
	if err := s.MarkDead(ctx, item, errors.New("x")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkDead on pending = %v, want ErrInvalidState", err)
	}

	clk.Advance(2 * time.Second)
	item = claimOne(t, s, clk.Now())
	stale := *item
	if err := s.MarkDelivered(ctx, item); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if err := s.MarkFailed(ctx, &stale, errors.New("late"), clk.Now()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("stale version must be rejected, got %v", err)
	}

	stored, _ = s.Get(ctx, "t1", item.ID)
	if stored.Status != StatusDelivered || stored.DeliveredAt == nil || stored.LastError != "" || stored.Attempts != 2 {
		t.Errorf("unexpected delivered item %+v", stored)
	}
}

func TestReplayOnlyFromDead(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "t1", "a")

	if dead, _, _ := s.ListDead(ctx, "t1", 1, 10); len(dead) != 0 {
		t.Fatalf("no dead items expected, got %d", len(dead))
	}
	item := claimOne(t, s, epoch)
	if _, err := s.Replay(ctx, "t1", item.ID, "ops"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replay of claimed item = %v, want ErrInvalidState", err)
	}
	if err := s.MarkDead(ctx, item, errors.New("400 bad request")); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}

	clk.Advance(time.Hour)
	replayed, err := s.Replay(ctx, "t1", item.ID, "ops@example")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.Status != StatusPending || replayed.Attempts != 1 || !replayed.NextAttemptAt.Equal(clk.Now()) {
		t.Errorf("unexpected replayed item %+v", replayed)
	}

	if _, err := s.Replay(ctx, "t1", item.ID, "ops"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("replay of pending item = %v, want ErrInvalidState", err)
	}
	if _, err := s.Replay(ctx, "t2", item.ID, "ops"); !errors.Is(err, ErrNotFound) {
		t.Errorf("replay across tenants = %v, want ErrNotFound", err)
	}

	audits, err := s.ListReplays(ctx, "t1", item.ID)
	if err != nil {
		t.Fatalf("ListReplays: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(audits))
	}
	if a := audits[0]; a.Actor != "ops@example" || a.PreviousAttempts != 1 || a.LastError != "400 bad request" {
		t.Errorf("unexpected audit %+v", a)
	}
}

func TestListDeadPaginatesPerTenant(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		enqueue(t, s, "t1", fmt.Sprintf("k-%d", i))
	}
	enqueue(t, s, "t2", "k-0")

	items, err := s.ClaimDue(ctx, 10, epoch)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	for _, it := range items {
		clk.Advance(time.Second)
		if err := s.MarkDead(ctx, it, errors.New("gone")); err != nil {
			t.Fatalf("MarkDead: %v", err)
		}
	}

	page, total, err := s.ListDead(ctx, "t1", 1, 2)
	if err != nil {
		t.Fatalf("ListDead: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d page=%d, want 5 and 2", total, len(page))
	}
	if page[0].UpdatedAt.Before(page[1].UpdatedAt) {
		t.Error("dead items should be newest first")
	}
	last, _, _ := s.ListDead(ctx, "t1", 3, 2)
	if len(last) != 1 {
		t.Errorf("last page size = %d, want 1", len(last))
	}
	for _, it := range append(page, last...) {
		if it.TenantID != "t1" {
			t.Errorf("ListDead leaked tenant %s", it.TenantID)
		}
	}
}

func TestReleaseAndReleaseStale(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "t1", "a")
	enqueue(t, s, "t1", "b")

	items, _ := s.ClaimDue(ctx, 2, epoch)
	if err := s.Release(ctx, items[0]); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if items[0].Status != StatusPending || items[0].Attempts != 0 {
		t.Errorf("release must not count an attempt: %+v", items[0])
	}

	clk.Advance(10 * time.Minute)
	n, err := s.ReleaseStale(ctx, clk.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ReleaseStale: %v", err)
	}
	if n != 1 {
		t.Errorf("ReleaseStale released %d, want 1", n)
	}
	if again, _ := s.ClaimDue(ctx, 10, clk.Now()); len(again) != 2 {
		t.Errorf("both items should be claimable again, got %d", len(again))
	}
}

func TestStoreErrorsAreRetryable(t *testing.T) {
	s, _, db := newTestStore(t)
	_ = db.Close()

	_, err := s.ClaimDue(context.Background(), 10, epoch)
	if err == nil {
		t.Fatal("expected error from closed database")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != apperrors.ErrCodeDatabaseError || !appErr.Retryable {
		t.Errorf("code = %s retryable = %v, want retryable DATABASE_ERROR", appErr.Code, appErr.Retryable)
	}
}
