package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
	status  int
	code    string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+f.code+`</Code><Message>fake</Message><RequestId>r1</RequestId></Error>`)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[r.URL.Path] = body
	f.headers[r.URL.Path] = r.Header.Clone()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTransport(t *testing.T, cfg Config) (*Transport, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, headers: map[string]http.Header{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	cfg.AccessKey, cfg.SecretKey = "test", "test"
	tr, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr, fake
}

func item(payload string) *outbox.Item {
	return &outbox.Item{ID: "item-1", TenantID: "t1", DedupeKey: "report-1", Kind: outbox.KindExport, Payload: []byte(payload)}
}

func TestDeliverPutsObject(t *testing.T) {
	tr, fake := newTransport(t, Config{Bucket: "exports", KeyPrefix: "tenants/"})

	// "aGVsbG8=" is base64 for "hello".
	err := tr.Deliver(context.Background(), item(`{"key":"t1/report.csv","content_type":"text/csv","body":"aGVsbG8="}`))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	const path = "/exports/tenants/t1/report.csv"
	if got := string(fake.objects[path]); got != "hello" {
		t.Fatalf("object %s = %q, have %v", path, got, fake.objects)
	}
	h := fake.headers[path]
	if h.Get("Content-Type") != "text/csv" || h.Get("X-Amz-Meta-Tenant-Id") != "t1" || h.Get("X-Amz-Meta-Outbox-Id") != "item-1" {
		t.Errorf("unexpected headers %v", h)
	}
}

func TestDeliverUsesPayloadBucket(t *testing.T) {
	tr, fake := newTransport(t, Config{})
	if err := tr.Deliver(context.Background(), item(`{"bucket":"other","key":"a.txt","body":""}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.objects["/other/a.txt"]; !ok {
		t.Errorf("object not written to payload bucket: %v", fake.objects)
	}
}

func TestDeliverClassifiesErrors(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		permanent bool
	}{
		{http.StatusNotFound, "NoSuchBucket", true},
		{http.StatusForbidden, "AccessDenied", true},
		{http.StatusServiceUnavailable, "SlowDown", false},
		{http.StatusInternalServerError, "InternalError", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			tr, fake := newTransport(t, Config{Bucket: "exports"})
			fake.mu.Lock()
			fake.status, fake.code = tt.status, tt.code
			fake.mu.Unlock()

			err := tr.Deliver(context.Background(), item(`{"key":"a.txt","body":"eA=="}`))
			if err == nil {
				t.Fatal("expected error")
			}
			if resilience.IsPermanent(err) != tt.permanent {
				t.Errorf("permanent = %v, want %v (%v)", resilience.IsPermanent(err), tt.permanent, err)
			}
			if !strings.Contains(err.Error(), "s3://exports/a.txt") {
				t.Errorf("error should name the object: %v", err)
			}
		})
	}
}

func TestDeliverWithoutBucketIsPermanent(t *testing.T) {
	tr, _ := newTransport(t, Config{})
	if err := tr.Deliver(context.Background(), item(`{"key":"a.txt"}`)); !resilience.IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if err := tr.Deliver(context.Background(), item(`{"body":"eA=="}`)); !resilience.IsPermanent(err) {
		t.Errorf("missing key must be permanent, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{AccessKey: "only-half"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("half-set credentials must fail")
	}
}
