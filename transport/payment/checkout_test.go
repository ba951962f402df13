package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/resilience-core/database"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/testutil"
	"github.com/kbukum/resilience-core/twophase"
)

func newCheckoutDB(t *testing.T, withIntents bool) (*database.DB, *outbox.GormStore) {
	t.Helper()
	models := outbox.Models()
	if withIntents {
		models = append(models, &Intent{})
	}
	db := testutil.NewSQLite(t, models...)
	return db, outbox.NewGormStore(db.GormDB, outbox.WithLogger(logger.Nop()))
}

func newStarter(db *database.DB, store *outbox.GormStore, c *Client) *Starter {
	breakers := resilience.NewRegistry(nil)
	coord := twophase.NewCoordinator(db, store, breakers, twophase.WithLogger(logger.Nop()))
	return NewStarter(c, coord, "stripe")
}

func TestStarterRecordsIntent(t *testing.T) {
	_, c := newFakeProvider(t)
	db, store := newCheckoutDB(t, true)
	s := newStarter(db, store, c)
	req := CheckoutRequest{TenantID: "t1", Reference: "order-7", AmountCents: 1500, Currency: "usd"}

	intent, err := s.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if intent.SessionID == "" || intent.SessionURL == "" || intent.TenantID != "t1" {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	again, err := s.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("repeat Start: %v", err)
	}
	if again.ID != intent.ID {
		t.Errorf("repeat created a new intent: %s != %s", again.ID, intent.ID)
	}
	var n int64
	db.GormDB.Model(&Intent{}).Count(&n)
	if n != 1 {
		t.Errorf("intents = %d, want 1", n)
	}
}

func TestStarterPhaseOneFailure(t *testing.T) {
	p, c := newFakeProvider(t)
	db, store := newCheckoutDB(t, true)
	s := newStarter(db, store, c)
	p.setFail(503)

	_, err := s.Start(context.Background(), CheckoutRequest{TenantID: "t1", Reference: "order-8", AmountCents: 100, Currency: "usd"})
	if !errors.Is(err, twophase.ErrPhaseOne) {
		t.Fatalf("expected ErrPhaseOne, got %v", err)
	}
	var n int64
	db.GormDB.Model(&outbox.Item{}).Count(&n)
	if n != 0 {
		t.Errorf("outbox items = %d, want 0", n)
	}
}

func TestFailedCommitIsCompensated(t *testing.T) {
	p, c := newFakeProvider(t)
	// No intents table, so the local commit fails after the session exists.
	db, store := newCheckoutDB(t, false)
	s := newStarter(db, store, c)
	ctx := context.Background()

	_, err := s.Start(ctx, CheckoutRequest{TenantID: "t1", Reference: "order-9", AmountCents: 900, Currency: "usd"})
	if !errors.Is(err, twophase.ErrPhaseTwo) {
		t.Fatalf("expected ErrPhaseTwo, got %v", err)
	}

	items, err := store.ClaimDue(ctx, 10, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(items) != 1 || items[0].Kind != outbox.KindCompensation {
		t.Fatalf("expected one compensation item, got %d", len(items))
	}
	sessionID := items[0].DedupeKey
	if p.status(sessionID) != StatusOpen {
		t.Fatalf("session %s should still be open before compensation", sessionID)
	}

	tr := NewCompensationTransport(c, "stripe", logger.Nop())
	if err := tr.Deliver(ctx, items[0]); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := p.status(sessionID); got != StatusExpired {
		t.Errorf("session status = %s, want expired", got)
	}
}
