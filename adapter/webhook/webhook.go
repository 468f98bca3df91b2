// Package webhook delivers execution events to an HTTP endpoint.
//
// Each event is one JSON POST. When a secret is configured the body is
// signed with HMAC-SHA256 so receivers can authenticate the sender.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/scriptrun/adapter"
	"github.com/pithecene-io/scriptrun/iox"
	"github.com/pithecene-io/scriptrun/types"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is used when the config leaves retries unset.
	DefaultRetries = 3
)

// Header names set on every delivery.
const (
	EventHeader     = "X-Scriptrun-Event"
	DeliveryHeader  = "X-Scriptrun-Delivery"
	SignatureHeader = "X-Scriptrun-Signature"
)

// Config configures the webhook adapter.
type Config struct {
	URL     string            // endpoint (required)
	Headers map[string]string // extra headers, applied last
	Secret  string            // enables the signature header
	Timeout time.Duration
	Retries int
}

// Adapter posts execution events to Config.URL.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether a later attempt may succeed. Client errors are
// final except request timeout and rate limiting.
func (e *StatusError) Retriable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 400 && e.Code < 500:
		return false
	}
	return true
}

// Publish posts event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ExecutionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "webhook", a.cfg.Retries, func(ctx context.Context) error {
		err := a.post(ctx, event.ExecutionID, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Retriable() {
			return &adapter.Permanent{Err: err}
		}
		return err
	})
}

func (a *Adapter) post(ctx context.Context, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "scriptrun/"+types.Version)
	h.Set(EventHeader, adapter.EventType)
	h.Set(DeliveryHeader, deliveryID)
	if a.cfg.Secret != "" {
		h.Set(SignatureHeader, Sign(a.cfg.Secret, body))
	}
	for k, v := range a.cfg.Headers {
		h.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
