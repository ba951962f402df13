package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kbukum/resilience-core/twophase"
)

// Intent is the local record of a started checkout.
type Intent struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string    `gorm:"size:128;not null;index" json:"tenant_id"`
	Reference   string    `gorm:"size:255;not null" json:"reference"`
	SessionID   string    `gorm:"size:255;not null;uniqueIndex" json:"session_id"`
	SessionURL  string    `gorm:"size:2048" json:"session_url"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"size:3;not null" json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for Intent.
func (Intent) TableName() string { return "payment_intents" }

// Starter opens checkout sessions with the two-phase coordinator: the
// provider session first, then the local Intent row.
type Starter struct {
	client     *Client
	coord      *twophase.Coordinator
	dependency string
}

// NewStarter creates a Starter. dependency names the provider's breaker and
// must match the route of the compensation transport.
func NewStarter(client *Client, coord *twophase.Coordinator, dependency string) *Starter {
	return &Starter{client: client, coord: coord, dependency: dependency}
}

// Start opens a checkout session for req and records it. A repeated request
// with the same idempotency key returns the intent recorded the first time.
func (s *Starter) Start(ctx context.Context, req CheckoutRequest) (*Intent, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = req.TenantID + ":" + req.Reference
	}
	var (
		session *Session
		intent  *Intent
	)
	_, err := s.coord.Execute(ctx, twophase.Request{
		TenantID:   req.TenantID,
		Dependency: s.dependency,
		Operation:  "checkout",
		External: func(ctx context.Context) (string, error) {
			var err error
			session, err = s.client.CreateCheckoutSession(ctx, req)
			if err != nil {
				return "", err
			}
			return session.ID, nil
		},
		Commit: func(ctx context.Context, tx *gorm.DB, sessionID string) error {
			existing := &Intent{}
			err := tx.WithContext(ctx).Where("session_id = ?", sessionID).Take(existing).Error
			if err == nil {
				intent = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			intent = &Intent{
				ID:          uuid.NewString(),
				TenantID:    req.TenantID,
				Reference:   req.Reference,
				SessionID:   sessionID,
				SessionURL:  session.URL,
				AmountCents: req.AmountCents,
				Currency:    req.Currency,
			}
			return tx.WithContext(ctx).Create(intent).Error
		},
		Reason: "checkout " + req.Reference + " not recorded",
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}
