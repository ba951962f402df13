// Package email delivers outbox items through an HTTP email provider API.
package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/resilience-core/httpclient"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/transport"
)

// Config configures the email provider.
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	From     string        `mapstructure:"from"`
	SendPath string        `mapstructure:"send_path"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.SendPath == "" {
		c.SendPath = "/v1/send"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("email: base_url is required")
	}
	if c.From == "" {
		return fmt.Errorf("email: from is required")
	}
	return nil
}

// Payload is the email item payload. At least one of HTML and Text is required.
type Payload struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=998"`
	HTML    string `json:"html" validate:"required_without=Text"`
	Text    string `json:"text"`
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Transport sends email items.
type Transport struct {
	client *httpclient.Client
	cfg    Config
}

// New creates an email transport.
func New(cfg Config) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := httpclient.New(httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Auth:    httpclient.BearerAuth(cfg.APIKey),
	})
	if err != nil {
		return nil, err
	}
	return &Transport{client: client, cfg: cfg}, nil
}

// Deliver sends one message.
func (t *Transport) Deliver(ctx context.Context, item *outbox.Item) error {
	var p Payload
	if err := transport.DecodePayload(item, &p); err != nil {
		return err
	}
	_, err := t.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    t.cfg.SendPath,
		Headers: map[string]string{"Idempotency-Key": transport.IdempotencyKey(item)},
		Body: message{
			From:    t.cfg.From,
			To:      []string{p.To},
			Subject: p.Subject,
			HTML:    p.HTML,
			Text:    p.Text,
		},
	})
	return transport.Classify(err)
}
