package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/transport"
)

// CompensationTransport delivers compensation items by expiring the
// orphaned checkout session. A session that is already gone or expired
// counts as compensated.
type CompensationTransport struct {
	client     *Client
	dependency string
	log        *logger.Logger
}

// NewCompensationTransport handles compensation items whose payload names
// dependency.
func NewCompensationTransport(client *Client, dependency string, log *logger.Logger) *CompensationTransport {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CompensationTransport{client: client, dependency: dependency, log: log.WithComponent("compensation")}
}

// Deliver expires the session named by the item.
func (t *CompensationTransport) Deliver(ctx context.Context, item *outbox.Item) error {
	var p outbox.CompensationPayload
	if err := transport.DecodePayload(item, &p); err != nil {
		return err
	}
	if p.Dependency != t.dependency {
		return resilience.Permanent(fmt.Errorf("compensation for %q cannot be handled by %q", p.Dependency, t.dependency))
	}

	_, err := t.client.ExpireCheckoutSession(ctx, p.ExternalID)
	switch {
	case err == nil:
		t.log.Info("Checkout session expired", logger.Fields(
			logger.FieldTenantID, item.TenantID,
			"external_id", p.ExternalID,
			"reason", p.Reason,
		))
		return nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrAlreadyExpired):
		t.log.Info("Checkout session already gone", logger.Fields(
			logger.FieldTenantID, item.TenantID,
			"external_id", p.ExternalID,
			logger.FieldError, err.Error(),
		))
		return nil
	case errors.Is(err, ErrSessionNotOpen):
		// A completed session took money without a local record. That needs
		// an operator, not a retry.
		return resilience.Permanent(err)
	default:
		return err
	}
}
