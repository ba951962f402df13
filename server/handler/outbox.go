package handler

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/server"
	"github.com/kbukum/resilience-core/server/middleware"
	"github.com/kbukum/resilience-core/validation"
)

const maxPageSize = 200

type enqueueRequest struct {
	TenantID  string          `json:"tenant_id" validate:"required,tenant_id"`
	DedupeKey string          `json:"dedupe_key" validate:"required,dedupe_key"`
	Kind      string          `json:"kind" validate:"required,outbox_kind"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	NotBefore *time.Time      `json:"not_before,omitempty"`
}

type enqueueResponse struct {
	ID      string        `json:"id"`
	Status  outbox.Status `json:"status"`
	Created bool          `json:"created"`
}

// enqueue accepts an item for delivery. A repeated (tenant_id, dedupe_key)
// returns the existing item with created=false.
func (h *handlers) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		h.fail(c, apperrors.InvalidInput("body", "must be a JSON object"))
		return
	}
	if err := validation.Validate(req); err != nil {
		h.fail(c, err)
		return
	}
	enq := outbox.EnqueueRequest{
		TenantID:  req.TenantID,
		DedupeKey: req.DedupeKey,
		Kind:      outbox.Kind(req.Kind),
		Payload:   req.Payload,
	}
	if req.NotBefore != nil {
		enq.NotBefore = *req.NotBefore
	}

	item, created, err := h.deps.Outbox.Enqueue(c.Request.Context(), enq)
	if err != nil {
		h.fail(c, err)
		return
	}
	if created {
		h.log.WithContext(c.Request.Context()).Debug("Outbox item enqueued", logger.Fields(
			logger.FieldOutboxID, item.ID,
			logger.FieldTenantID, item.TenantID,
			logger.FieldKind, string(item.Kind),
		))
	}
	server.RespondAccepted(c, enqueueResponse{ID: item.ID, Status: item.Status, Created: created})
}

func (h *handlers) listDead(c *gin.Context) {
	tenant := c.Query("tenant_id")
	page, pageErr := queryInt(c, "page", 1)
	size, sizeErr := queryInt(c, "page_size", 50)
	v := validation.New().
		Required("tenant_id", tenant).
		Custom(pageErr == nil && page >= 1, "page", "must be a positive integer").
		Custom(sizeErr == nil, "page_size", "must be an integer")
	if sizeErr == nil {
		v.Range("page_size", size, 1, maxPageSize)
	}
	if appErr := v.Validate(); appErr != nil {
		h.fail(c, appErr)
		return
	}

	items, total, err := h.deps.Outbox.ListDead(c.Request.Context(), tenant, page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	server.RespondOKWithMeta(c, items, server.NewMeta(page, size, total))
}

func (h *handlers) getItem(c *gin.Context) {
	tenant, id, ok := h.itemParams(c)
	if !ok {
		return
	}
	item, err := h.deps.Outbox.Get(c.Request.Context(), tenant, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	server.RespondOK(c, item)
}

// replay moves a dead item back to pending. The actor recorded in the audit
// trail is the operator's token subject.
func (h *handlers) replay(c *gin.Context) {
	tenant, id, ok := h.itemParams(c)
	if !ok {
		return
	}
	actor := c.GetString(middleware.OperatorKey)
	if actor == "" {
		actor = "anonymous"
	}
	item, err := h.deps.Outbox.Replay(c.Request.Context(), tenant, id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	server.RespondOK(c, item)
}

func (h *handlers) listReplays(c *gin.Context) {
	tenant, id, ok := h.itemParams(c)
	if !ok {
		return
	}
	audits, err := h.deps.Outbox.ListReplays(c.Request.Context(), tenant, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	server.RespondOK(c, audits)
}

func (h *handlers) itemParams(c *gin.Context) (tenant, id string, ok bool) {
	tenant, id = c.Query("tenant_id"), c.Param("id")
	v := validation.New().Required("tenant_id", tenant).RequiredUUID("id", id)
	if appErr := v.Validate(); appErr != nil {
		h.fail(c, appErr)
		return "", "", false
	}
	return tenant, id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
