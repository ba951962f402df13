package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/server"
	"github.com/kbukum/resilience-core/transport/payment"
	"github.com/kbukum/resilience-core/validation"
)

type checkoutRequest struct {
	TenantID    string `json:"tenant_id" validate:"required,tenant_id"`
	Reference   string `json:"reference" validate:"required,dedupe_key"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
}

// checkout starts a payment session and records it locally. The provider
// session is created first; if the local record cannot be written the
// session is expired through a compensation item.
func (h *handlers) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		h.fail(c, apperrors.InvalidInput("body", "must be a JSON object"))
		return
	}
	if err := validation.Validate(req); err != nil {
		h.fail(c, err)
		return
	}
	intent, err := h.deps.Checkout.Start(c.Request.Context(), payment.CheckoutRequest{
		TenantID:    req.TenantID,
		Reference:   req.Reference,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	server.RespondCreated(c, intent)
}
