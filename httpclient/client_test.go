package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Do_POST_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}
		if ua := r.Header.Get("User-Agent"); ua != "resilience-core" {
			t.Errorf("expected default user agent, got %q", ua)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg_1", "to": body["to"]})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out struct {
		ID string `json:"id"`
		To string `json:"to"`
	}
	resp, err := c.DoJSON(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/send",
		Body:   map[string]string{"to": "a@example.com"},
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 || out.ID != "msg_1" || out.To != "a@example.com" {
		t.Errorf("unexpected response %d %+v", resp.StatusCode, out)
	}
}

func TestClient_Do_HeadersQueryAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Custom"); got != "value" {
			t.Errorf("expected X-Custom=value, got %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "k1" {
			t.Errorf("expected request header, got %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page=2, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer override" {
			t.Errorf("expected per-request auth, got %q", got)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c, err := New(Config{
		BaseURL: srv.URL,
		Headers: map[string]string{"X-Custom": "value"},
		Auth:    BearerAuth("default"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/items",
		Query:   map[string]string{"page": "2"},
		Headers: map[string]string{"Idempotency-Key": "k1"},
		Auth:    BearerAuth("override"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_Do_BasicAndAPIKeyAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		key := r.Header.Get("X-Api-Key")
		if !(ok && user == "sk_test" && pass == "") && key != "k" {
			t.Errorf("missing credentials: basic=%v key=%q", ok, key)
		}
		w.WriteHeader(204)
	}))
	defer srv.Close()

	for _, auth := range []*AuthConfig{BasicAuth("sk_test", ""), APIKeyAuth("k", "X-Api-Key")} {
		c, _ := New(Config{BaseURL: srv.URL, Auth: auth})
		if _, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestClient_Do_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("details"))
		}))
		c, _ := New(Config{BaseURL: srv.URL})
		resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if resp == nil || resp.StatusCode != tt.status {
			t.Errorf("status %d: response should be returned with the error", tt.status)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, IsRetryable(err), tt.retryable)
		}
		if !strings.Contains(err.Error(), "details") {
			t.Errorf("status %d: body snippet missing from %q", tt.status, err.Error())
		}
	}
}

func TestClient_Do_DeadlineIsRetryableTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(Config{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/"})
	if !IsTimeout(err) || !IsRetryable(err) {
		t.Errorf("expected retryable timeout, got %v", err)
	}
}

func TestClient_Do_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := New(Config{BaseURL: url})
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err == nil || !IsRetryable(err) || IsTimeout(err) {
		t.Errorf("expected retryable connection error, got %v", err)
	}
}

func TestClient_Do_FullURLIgnoresBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hook" {
			t.Errorf("expected /hook, got %s", r.URL.Path)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: "http://unused.invalid"})
	if _, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: srv.URL + "/hook", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
