package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/resilience-core/logger"
)

// EnqueueRequest describes a new item.
type EnqueueRequest struct {
	TenantID  string
	DedupeKey string
	Kind      Kind
	Payload   []byte
	// NotBefore delays the first attempt. Zero means due immediately.
	NotBefore time.Time
}

// GormStore persists items with gorm.
type GormStore struct {
	db    *gorm.DB
	clock clock.Clock
	log   *logger.Logger
}

// StoreOption configures a GormStore.
type StoreOption func(*GormStore)

// WithClock injects the time source used for timestamps.
func WithClock(clk clock.Clock) StoreOption {
	return func(s *GormStore) { s.clock = clk }
}

// WithLogger sets the store logger.
func WithLogger(log *logger.Logger) StoreOption {
	return func(s *GormStore) { s.log = log.WithComponent("outbox") }
}

// NewGormStore creates a store over db.
func NewGormStore(db *gorm.DB, opts ...StoreOption) *GormStore {
	s := &GormStore{
		db:    db,
		clock: clock.WallClock,
		log:   logger.WithComponent("outbox"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a store bound to tx, so an enqueue commits or rolls back
// together with the caller's business writes.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx, clock: s.clock, log: s.log}
}

// now is truncated to microseconds, the precision PostgreSQL keeps.
func (s *GormStore) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// Enqueue inserts an item, or returns the existing item for the same
// (tenant_id, dedupe_key) unchanged. created reports whether a row was inserted.
func (s *GormStore) Enqueue(ctx context.Context, req EnqueueRequest) (item *Item, created bool, err error) {
	if req.TenantID == "" || req.DedupeKey == "" {
		return nil, false, fmt.Errorf("%w: tenant_id and dedupe_key are required", ErrInvalidItem)
	}
	if !req.Kind.Valid() {
		return nil, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, req.Kind)
	}
	if req.Payload == nil {
		req.Payload = []byte{}
	}

	now := s.now()
	next := now
	if !req.NotBefore.IsZero() {
		next = req.NotBefore.UTC().Truncate(time.Microsecond)
	}
	item = &Item{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		DedupeKey:     req.DedupeKey,
		Kind:          req.Kind,
		Payload:       req.Payload,
		Status:        StatusPending,
		NextAttemptAt: next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return nil, false, storeError("enqueue", res.Error)
	}
	if res.RowsAffected == 1 {
		return item, true, nil
	}

	existing := &Item{}
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND dedupe_key = ?", req.TenantID, req.DedupeKey).
		Take(existing).Error
	if err != nil {
		return nil, false, storeError("enqueue fetch", err)
	}
	return existing, false, nil
}

// ClaimDue moves up to limit due pending items to claimed and returns them.
// Each row is claimed with a compare-and-swap on (status, version), so an item
// is returned to exactly one caller even when several engines race.
func (s *GormStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC().Truncate(time.Microsecond)

	var candidates []*Item
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", StatusPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, storeError("claim select", err)
	}

	claimed := make([]*Item, 0, len(candidates))
	for _, it := range candidates {
		res := s.db.WithContext(ctx).Model(&Item{}).
			Where("id = ? AND status = ? AND version = ?", it.ID, StatusPending, it.Version).
			Updates(map[string]interface{}{
				"status":     StatusClaimed,
				"version":    gorm.Expr("version + 1"),
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, storeError("claim", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		it.Status = StatusClaimed
		it.Version++
		it.ClaimedAt = &now
		it.UpdatedAt = now
		claimed = append(claimed, it)
	}
	return claimed, nil
}

// MarkDelivered finishes a claimed item. The successful call counts as an
// attempt, so attempts is the total number of transport calls made.
func (s *GormStore) MarkDelivered(ctx context.Context, item *Item) error {
	now := s.now()
	err := s.transition(ctx, item, StatusClaimed, map[string]interface{}{
		"status":       StatusDelivered,
		"attempts":     gorm.Expr("attempts + 1"),
		"delivered_at": now,
		"last_error":   "",
	})
	if err != nil {
		return err
	}
	item.Status = StatusDelivered
	item.Attempts++
	item.DeliveredAt = &now
	item.LastError = ""
	return nil
}

// MarkFailed records a failed attempt and reschedules the item.
func (s *GormStore) MarkFailed(ctx context.Context, item *Item, cause error, nextAttemptAt time.Time) error {
	next := nextAttemptAt.UTC().Truncate(time.Microsecond)
	msg := SanitizeError(cause)
	err := s.transition(ctx, item, StatusClaimed, map[string]interface{}{
		"status":          StatusPending,
		"attempts":        gorm.Expr("attempts + 1"),
		"next_attempt_at": next,
		"last_error":      msg,
		"claimed_at":      nil,
	})
	if err != nil {
		return err
	}
	item.Status = StatusPending
	item.Attempts++
	item.NextAttemptAt = next
	item.LastError = msg
	item.ClaimedAt = nil
	return nil
}

// MarkDead records a final failed attempt and dead-letters the item.
func (s *GormStore) MarkDead(ctx context.Context, item *Item, cause error) error {
	msg := SanitizeError(cause)
	err := s.transition(ctx, item, StatusClaimed, map[string]interface{}{
		"status":     StatusDead,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": msg,
		"claimed_at": nil,
	})
	if err != nil {
		return err
	}
	item.Status = StatusDead
	item.Attempts++
	item.LastError = msg
	item.ClaimedAt = nil
	return nil
}

// Release returns a claimed item to pending without counting an attempt.
func (s *GormStore) Release(ctx context.Context, item *Item) error {
	err := s.transition(ctx, item, StatusClaimed, map[string]interface{}{
		"status":     StatusPending,
		"claimed_at": nil,
	})
	if err != nil {
		return err
	}
	item.Status = StatusPending
	item.ClaimedAt = nil
	return nil
}

// ReleaseStale returns items claimed before claimedBefore to pending. It
// recovers claims left behind by an engine that died mid-batch.
func (s *GormStore) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Item{}).
		Where("status = ? AND claimed_at < ?", StatusClaimed, claimedBefore.UTC().Truncate(time.Microsecond)).
		Updates(map[string]interface{}{
			"status":     StatusPending,
			"version":    gorm.Expr("version + 1"),
			"claimed_at": nil,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return 0, storeError("release stale", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Warn("Released stale claims", logger.Fields("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// transition applies updates guarded by the expected status and the item's
// version. A lost race or stale item yields ErrInvalidState.
func (s *GormStore) transition(ctx context.Context, item *Item, from Status, updates map[string]interface{}) error {
	now := s.now()
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = now

	res := s.db.WithContext(ctx).Model(&Item{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND version = ?", item.ID, item.TenantID, from, item.Version).
		Updates(updates)
	if res.Error != nil {
		return storeError("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: item %s is no longer %s at version %d", ErrInvalidState, item.ID, from, item.Version)
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

// Get returns one item of a tenant.
func (s *GormStore) Get(ctx context.Context, tenantID, id string) (*Item, error) {
	item := &Item{}
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Take(item).Error
	if err != nil {
		return nil, storeError("get", err)
	}
	return item, nil
}

// Replay moves a dead item back to pending, due now, keeping its attempts,
// and appends an audit row. Any other status yields ErrInvalidState and
// nothing is written.
func (s *GormStore) Replay(ctx context.Context, tenantID, id, actor string) (*Item, error) {
	var replayed *Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item := &Item{}
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).Take(item).Error; err != nil {
			return storeError("replay load", err)
		}
		if item.Status != StatusDead {
			return fmt.Errorf("%w: item %s is %s, only dead items can be replayed", ErrInvalidState, id, item.Status)
		}

		now := s.now()
		audit := &ReplayAudit{
			ID:               uuid.NewString(),
			ItemID:           item.ID,
			TenantID:         item.TenantID,
			Actor:            actor,
			PreviousAttempts: item.Attempts,
			LastError:        item.LastError,
			ReplayedAt:       now,
		}

		txStore := s.WithTx(tx)
		if err := txStore.transition(ctx, item, StatusDead, map[string]interface{}{
			"status":          StatusPending,
			"next_attempt_at": now,
		}); err != nil {
			return err
		}
		if err := tx.Create(audit).Error; err != nil {
			return storeError("replay audit", err)
		}

		item.Status = StatusPending
		item.NextAttemptAt = now
		replayed = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Outbox item replayed", logger.Fields(
		logger.FieldOutboxID, replayed.ID,
		logger.FieldTenantID, replayed.TenantID,
		logger.FieldAttempts, replayed.Attempts,
		"actor", actor,
	))
	return replayed, nil
}

// ListDead returns a tenant's dead items, most recently failed first. page
// starts at 1.
func (s *GormStore) ListDead(ctx context.Context, tenantID string, page, pageSize int) ([]*Item, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	q := s.db.WithContext(ctx).Model(&Item{}).
		Where("tenant_id = ? AND status = ?", tenantID, StatusDead).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storeError("count dead", err)
	}

	var items []*Item
	err := q.Order("updated_at DESC").Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, storeError("list dead", err)
	}
	return items, total, nil
}

// ListReplays returns the replay audit trail of an item, oldest first.
func (s *GormStore) ListReplays(ctx context.Context, tenantID, itemID string) ([]*ReplayAudit, error) {
	var audits []*ReplayAudit
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Order("replayed_at ASC").
		Find(&audits).Error
	if err != nil {
		return nil, storeError("list replays", err)
	}
	return audits, nil
}
