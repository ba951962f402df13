package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

func item(payload string) *outbox.Item {
	return &outbox.Item{ID: "item-1", TenantID: "t1", DedupeKey: "order-1", Kind: outbox.KindWebhook, Payload: []byte(payload)}
}

func TestDeliverSignsAndPosts(t *testing.T) {
	secret := []byte("whsec")
	var seen atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(true)
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"order":1}` {
			t.Errorf("unexpected body %s", body)
		}
		if !Verify(secret, body, r.Header.Get("X-Signature")) {
			t.Errorf("signature %q does not verify", r.Header.Get("X-Signature"))
		}
		if got := r.Header.Get("Idempotency-Key"); got != "t1:order-1" {
			t.Errorf("Idempotency-Key = %q", got)
		}
		if got := r.Header.Get("X-Event"); got != "order.paid" {
			t.Errorf("X-Event = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr, err := New(Config{SigningSecret: string(secret)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = tr.Deliver(context.Background(), item(`{"url":"`+srv.URL+`/hook","event":"order.paid","body":{"order":1}}`))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !seen.Load() {
		t.Error("receiver was not called")
	}
}

func TestDeliverClassifiesResponses(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusGone, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		tr, _ := New(Config{})
		err := tr.Deliver(context.Background(), item(`{"url":"`+srv.URL+`","event":"e"}`))
		srv.Close()
		if err == nil {
			t.Errorf("%d: expected error", tt.status)
			continue
		}
		if resilience.IsPermanent(err) != tt.permanent {
			t.Errorf("%d: permanent = %v, want %v", tt.status, resilience.IsPermanent(err), tt.permanent)
		}
	}
}

func TestDeliverErrorIsStorableWithMultiByteBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, strings.Repeat("a", 199)+"€€€ upstream down")
	}))
	defer srv.Close()

	tr, _ := New(Config{})
	err := tr.Deliver(context.Background(), item(`{"url":"`+srv.URL+`","event":"e"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := outbox.SanitizeError(err); !utf8.ValidString(msg) {
		t.Errorf("last_error is not valid UTF-8: %q", msg)
	}
}

func TestDeliverRejectsMalformedPayload(t *testing.T) {
	tr, _ := New(Config{})
	for _, payload := range []string{`not json`, `{"event":"e"}`, `{"url":"not a url","event":"e"}`} {
		if err := tr.Deliver(context.Background(), item(payload)); !resilience.IsPermanent(err) {
			t.Errorf("%s: expected permanent error, got %v", payload, err)
		}
	}
}

func TestVerify(t *testing.T) {
	secret, body := []byte("s"), []byte(`{}`)
	sig := Sign(secret, body)
	if !Verify(secret, body, sig) {
		t.Error("own signature must verify")
	}
	if Verify([]byte("other"), body, sig) || Verify(secret, []byte(`{"x":1}`), sig) {
		t.Error("signature must bind secret and body")
	}
	if Verify(secret, body, "md5=abc") || Verify(secret, body, "sha256=zz") {
		t.Error("malformed headers must not verify")
	}
}
