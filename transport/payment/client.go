// Package payment is a client for the payment provider's checkout sessions,
// plus the compensation transport that expires sessions orphaned by a failed
// local commit.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kbukum/resilience-core/httpclient"
	"github.com/kbukum/resilience-core/transport"
)

var (
	// ErrSessionNotFound is returned when the provider does not know the session.
	ErrSessionNotFound = errors.New("checkout session not found")

	// ErrAlreadyExpired is returned when expiring a session that already expired.
	ErrAlreadyExpired = errors.New("checkout session already expired")

	// ErrSessionNotOpen is returned when the session can no longer be expired,
	// typically because it completed.
	ErrSessionNotOpen = errors.New("checkout session is not open")
)

// Session statuses reported by the provider.
const (
	StatusOpen     = "open"
	StatusComplete = "complete"
	StatusExpired  = "expired"
)

// Config configures the payment provider client.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	SecretKey  string        `mapstructure:"secret_key"`
	SuccessURL string        `mapstructure:"success_url"`
	CancelURL  string        `mapstructure:"cancel_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("payment: base_url is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("payment: secret_key is required")
	}
	return nil
}

// CheckoutRequest starts a checkout session.
type CheckoutRequest struct {
	TenantID    string
	Reference   string
	AmountCents int64
	Currency    string
	// IdempotencyKey makes a repeated create return the same session.
	IdempotencyKey string
}

// Session is a provider checkout session.
type Session struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expires_at"`
}

// Client talks to the payment provider.
type Client struct {
	http *httpclient.Client
	cfg  Config
}

// NewClient creates a payment client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := httpclient.New(httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Auth:    httpclient.BasicAuth(cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: c, cfg: cfg}, nil
}

// CreateCheckoutSession creates a session. Errors are classified as
// permanent or retryable.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	body := map[string]any{
		"amount":              req.AmountCents,
		"currency":            req.Currency,
		"client_reference_id": req.Reference,
		"metadata":            map[string]string{"tenant_id": req.TenantID},
	}
	if c.cfg.SuccessURL != "" {
		body["success_url"] = c.cfg.SuccessURL
	}
	if c.cfg.CancelURL != "" {
		body["cancel_url"] = c.cfg.CancelURL
	}
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	var s Session
	_, err := c.http.DoJSON(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/v1/checkout/sessions",
		Headers: headers,
		Body:    body,
	}, &s)
	if err != nil {
		return nil, transport.Classify(fmt.Errorf("create checkout session: %w", err))
	}
	if s.ID == "" {
		return nil, transport.Classify(errors.New("create checkout session: provider returned no session id"))
	}
	return &s, nil
}

// ExpireCheckoutSession expires an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	resp, err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/v1/checkout/sessions/" + url.PathEscape(id) + "/expire",
	}, &s)
	switch {
	case err == nil:
		return &s, nil
	case httpclient.IsNotFound(err):
		return nil, fmt.Errorf("expire %s: %w", id, ErrSessionNotFound)
	case httpclient.IsConflict(err):
		if resp != nil && json.Unmarshal(resp.Body, &s) == nil && s.Status == StatusExpired {
			return &s, fmt.Errorf("expire %s: %w", id, ErrAlreadyExpired)
		}
		return nil, fmt.Errorf("expire %s: %w", id, ErrSessionNotOpen)
	default:
		return nil, transport.Classify(fmt.Errorf("expire checkout session %s: %w", id, err))
	}
}
