// Package redis implements a Redis adapter.
//
// Events are published as JSON to a pub/sub channel, or appended to a
// capped list so consumers that were not subscribed can still read them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/scriptrun/adapter"
)

// DefaultChannel is the default channel (or list key) name.
const DefaultChannel = "scriptrun:execution_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Delivery modes.
const (
	ModePublish = "publish"
	ModeList    = "list"
)

// DefaultMaxLen caps the list in list mode.
const DefaultMaxLen = 1000

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or list key.
	Channel string
	// Mode is "publish" (default) or "list".
	Mode string
	// MaxLen caps the list length in list mode.
	MaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter delivers execution events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeList:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q", cfg.Mode)
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish delivers the event, retrying with exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ExecutionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		err := a.deliver(publishCtx, body)
		if errors.Is(err, goredis.ErrClosed) {
			return &adapter.Permanent{Err: err}
		}
		return err
	})
}

func (a *Adapter) deliver(ctx context.Context, body []byte) error {
	if a.config.Mode == ModePublish {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	pipe := a.client.TxPipeline()
	pipe.LPush(ctx, a.config.Channel, body)
	pipe.LTrim(ctx, a.config.Channel, 0, a.config.MaxLen-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
