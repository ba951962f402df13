// Package validation validates API input and reports failures as
// INVALID_INPUT AppErrors with per-field details.
//
// Struct tags use go-playground/validator plus the domain rules
// "dedupe_key" and "outbox_kind":
//
//	type EnqueueRequest struct {
//	    TenantID  string `json:"tenant_id" validate:"required,tenant_id"`
//	    DedupeKey string `json:"dedupe_key" validate:"required,dedupe_key"`
//	    Kind      string `json:"kind" validate:"required,outbox_kind"`
//	}
//	err := validation.Validate(req)
//
// Query parameters are checked programmatically:
//
//	v := validation.New()
//	v.Required("tenant_id", tenant).Range("page_size", size, 1, 200)
//	if err := v.Validate(); err != nil { ... }
package validation
