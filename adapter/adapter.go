// Package adapter defines the boundary for publishing execution results to
// downstream systems.
//
// The worker owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventType is the event_type of every published event.
const EventType = "execution_completed"

// ExecutionCompletedEvent is the payload published when a tool call finishes.
type ExecutionCompletedEvent struct {
	EventType   string   `json:"event_type"` // always "execution_completed"
	ExecutionID string   `json:"execution_id"`
	Tool        string   `json:"tool"`
	Language    string   `json:"language"`
	Driver      string   `json:"driver"`
	Outcome     string   `json:"outcome"` // success, snippet_error, timeout, ...
	Result      *string  `json:"result"`
	Error       *string  `json:"error"`
	LogCount    int      `json:"log_count"`
	Worker      string   `json:"worker,omitempty"`
	Timestamp   string   `json:"timestamp"` // RFC 3339
	DurationMs  int64    `json:"duration_ms"`
	Deps        []string `json:"dependencies,omitempty"`
}

// Adapter publishes execution events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ExecutionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// Backoff returns the delay before retry attempt n (n >= 1): 500ms doubling.
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * 500 * time.Millisecond
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. A *Permanent error stops immediately. name prefixes errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
