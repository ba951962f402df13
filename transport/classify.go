package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/resilience-core/httpclient"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Classify marks err as permanent or retryable. Classified HTTP errors keep
// their verdict; errors already wrapped by resilience pass through; anything
// else, network failures and deadlines included, is retryable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var p *resilience.PermanentError
	var r *resilience.RetryableError
	if errors.As(err, &p) || errors.As(err, &r) {
		return err
	}
	var he *httpclient.Error
	if errors.As(err, &he) && !he.Retryable {
		return resilience.Permanent(err)
	}
	return resilience.Retryable(err)
}

// ClassifyHTTP classifies a response status: nil for 2xx, retryable for 408,
// 425, 429 and 5xx, permanent for any other status.
func ClassifyHTTP(status int, body []byte) error {
	if e := httpclient.ClassifyStatusCode(status, body); e != nil {
		return Classify(e)
	}
	return nil
}

// DecodePayload unmarshals the item payload into v and validates it with its
// `validate` struct tags. A malformed payload never becomes deliverable, so
// both failures are permanent.
func DecodePayload(item *outbox.Item, v any) error {
	if err := json.Unmarshal(item.Payload, v); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s payload: %w", item.Kind, err))
	}
	if err := validate.Struct(v); err != nil {
		return resilience.Permanent(fmt.Errorf("invalid %s payload: %w", item.Kind, err))
	}
	return nil
}

// IdempotencyKey is the key sent to providers so a redelivered item is
// recognized downstream.
func IdempotencyKey(item *outbox.Item) string {
	return item.TenantID + ":" + item.DedupeKey
}
