package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/scriptrun/adapter"
	"github.com/pithecene-io/scriptrun/iox"
)

func testEvent() *adapter.ExecutionCompletedEvent {
	result := "42"
	return &adapter.ExecutionCompletedEvent{
		EventType:   adapter.EventType,
		ExecutionID: "exec-001",
		Tool:        "run_javascript",
		Language:    "javascript",
		Driver:      "builtin",
		Outcome:     "success",
		Result:      &result,
		LogCount:    2,
		Timestamp:   "2026-02-07T12:00:00Z",
		DurationMs:  15,
	}
}

// capture records the last delivery seen by a test server.
type capture struct {
	mu     sync.Mutex
	header http.Header
	body   []byte
	calls  atomic.Int32
}

// serve starts a server answering each request with the next status in
// codes; the last code repeats.
func (c *capture) serve(t *testing.T, codes ...int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(c.calls.Add(1))
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.header, c.body = r.Header.Clone(), body
		c.mu.Unlock()
		w.WriteHeader(codes[min(n, len(codes))-1])
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (c *capture) last() (http.Header, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header, c.body
}

func newAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { iox.DiscardClose(a) })
	return a
}

func TestPublish_Delivery(t *testing.T) {
	var c capture
	ts := c.serve(t, http.StatusNoContent)
	a := newAdapter(t, Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer tok"}})

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	header, body := c.last()
	var got adapter.ExecutionCompletedEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.ExecutionID != "exec-001" || got.Result == nil || *got.Result != "42" {
		t.Errorf("delivered event = %+v", got)
	}

	wantHeaders := map[string]string{
		"Content-Type":  "application/json",
		EventHeader:     adapter.EventType,
		DeliveryHeader:  "exec-001",
		"Authorization": "Bearer tok",
	}
	for k, want := range wantHeaders {
		if v := header.Get(k); v != want {
			t.Errorf("header %s = %q, want %q", k, v, want)
		}
	}
	if v := header.Get(SignatureHeader); v != "" {
		t.Errorf("unexpected signature without secret: %q", v)
	}
}

func TestPublish_Signature(t *testing.T) {
	var c capture
	ts := c.serve(t, http.StatusOK)
	a := newAdapter(t, Config{URL: ts.URL, Secret: "s3cret"})

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	header, body := c.last()
	if got, want := header.Get(SignatureHeader), Sign("s3cret", body); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestSign(t *testing.T) {
	// Known HMAC-SHA256 vector ("key", "The quick brown fox jumps over the lazy dog").
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		codes     []int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{"transient then ok", []int{503, 200}, 2, false, 2},
		{"rate limited then ok", []int{429, 200}, 1, false, 2},
		{"bad request is final", []int{400}, 3, true, 1},
		{"not found is final", []int{404}, 3, true, 1},
		{"server errors exhaust retries", []int{502}, 2, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c capture
			ts := c.serve(t, tt.codes...)
			a := newAdapter(t, Config{URL: ts.URL, Retries: tt.retries, Timeout: 5 * time.Second})

			err := a.Publish(t.Context(), testEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := c.calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestStatusError_Retriable(t *testing.T) {
	for code, want := range map[int]bool{400: false, 401: false, 408: true, 422: false, 429: true, 500: true, 503: true} {
		if got := (&StatusError{Code: code}).Retriable(); got != want {
			t.Errorf("Retriable(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	a := newAdapter(t, Config{URL: ts.URL})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://example.com", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
	a := newAdapter(t, Config{URL: "http://example.com"})
	if a.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", a.cfg.Timeout, DefaultTimeout)
	}
}
