// Package redisqueue is a command source backed by a Redis list.
//
// Producers RPUSH JSON command envelopes; the bridge LPOPs the oldest one
// per poll. LPOP removes the entry, so each command is read exactly once by
// exactly one consumer.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/boothbridge/types"
)

// DefaultKey is the default list key.
const DefaultKey = "boothbridge:commands"

// DefaultTimeout is the default per-call timeout.
const DefaultTimeout = 5 * time.Second

// ErrMalformedCommand is returned for list entries that are not command JSON.
// The entry has already been removed from the list.
var ErrMalformedCommand = errors.New("malformed command entry")

// Config configures the queue.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Key is the list key (default: boothbridge:commands).
	Key string
	// Timeout is the per-call timeout (default 5s).
	Timeout time.Duration
}

// Queue reads and writes the command list.
type Queue struct {
	config Config
	client *goredis.Client
}

// New creates a queue from the given config.
func New(cfg Config) (*Queue, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis command queue requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis command queue: invalid URL: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Queue{config: cfg, client: goredis.NewClient(opts)}, nil
}

// entry is the JSON shape of a list element.
type entry struct {
	ID      string            `json:"id,omitempty"`
	Command types.CommandType `json:"command"`
	Params  json.RawMessage   `json:"params,omitempty"`
}

// NextCommand pops the oldest command. Returns nil, nil when the list is empty.
func (q *Queue) NextCommand(ctx context.Context) (*types.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	raw, err := q.client.LPop(ctx, q.config.Key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis command queue: pop: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Command == "" {
		return nil, fmt.Errorf("redis command queue: %w: %q", ErrMalformedCommand, truncate(raw, 64))
	}
	return &types.Command{ID: e.ID, Type: e.Command, Params: e.Params}, nil
}

// Push appends a command to the tail of the list under a fresh id.
func (q *Queue) Push(ctx context.Context, cmd types.CommandType, params any) error {
	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("redis command queue: marshal params: %w", err)
		}
		rawParams = b
	}
	body, err := json.Marshal(entry{ID: uuid.NewString(), Command: cmd, Params: rawParams})
	if err != nil {
		return fmt.Errorf("redis command queue: marshal command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()
	if err := q.client.RPush(ctx, q.config.Key, body).Err(); err != nil {
		return fmt.Errorf("redis command queue: push: %w", err)
	}
	return nil
}

// Len returns the number of pending commands.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()
	return q.client.LLen(ctx, q.config.Key).Result()
}

// Close releases the connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
