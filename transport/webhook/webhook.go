// Package webhook delivers outbox items as signed HTTP POSTs.
//
// The request body is the payload's "body" field, sent as-is. Receivers
// verify it with the X-Signature header:
//
//	X-Signature: sha256=<hex hmac-sha256(signing_secret, body)>
//
// Idempotency-Key is "<tenant_id>:<dedupe_key>", stable across retries.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/resilience-core/httpclient"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/transport"
)

const signaturePrefix = "sha256="

// Config configures the webhook transport.
type Config struct {
	// SigningSecret signs every request body. Empty disables signing.
	SigningSecret string `mapstructure:"signing_secret"`

	// Timeout caps one request; the engine's call timeout usually wins.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Payload is the webhook item payload.
type Payload struct {
	URL   string          `json:"url" validate:"required,url"`
	Event string          `json:"event" validate:"required"`
	Body  json.RawMessage `json:"body"`
}

// Transport posts webhook items.
type Transport struct {
	client *httpclient.Client
	secret []byte
}

// New creates a webhook transport.
func New(cfg Config) (*Transport, error) {
	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &Transport{client: client, secret: []byte(cfg.SigningSecret)}, nil
}

// Deliver posts the payload body to its URL.
func (t *Transport) Deliver(ctx context.Context, item *outbox.Item) error {
	var p Payload
	if err := transport.DecodePayload(item, &p); err != nil {
		return err
	}
	body := []byte(p.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		"Idempotency-Key": transport.IdempotencyKey(item),
		"X-Event":         p.Event,
		"X-Outbox-Id":     item.ID,
	}
	if len(t.secret) > 0 {
		headers["X-Signature"] = Sign(t.secret, body)
	}

	_, err := t.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    p.URL,
		Headers: headers,
		Body:    body,
	})
	return transport.Classify(err)
}

// Sign returns the X-Signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks an X-Signature header value in constant time.
func Verify(secret, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
