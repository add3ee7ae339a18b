// Package redis publishes artifact_synced notifications to a Redis channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/boothbridge/notify"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "boothbridge:artifact_synced"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 2

// Config configures the Redis pub/sub publisher.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: boothbridge:artifact_synced).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Publisher sends notifications via Redis PUBLISH.
type Publisher struct {
	config Config
	client *goredis.Client
}

// New creates a Redis publisher from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis notifier requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis notifier: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Publisher{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as JSON to the configured channel.
func (p *Publisher) Publish(ctx context.Context, event *notify.SyncedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	return notify.Retry(ctx, "redis", p.config.Retries, nil, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		return p.client.Publish(publishCtx, p.config.Channel, body).Err()
	})
}

// Close releases publisher resources.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ notify.Publisher = (*Publisher)(nil)
