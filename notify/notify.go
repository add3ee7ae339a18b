// Package notify publishes artifact_synced notifications to downstream
// systems (an HTTP webhook or a Redis channel).
//
// Notifications are best effort. A failed publish is reported to the
// caller for logging and never undoes the sync record.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/boothbridge/types"
)

// EventTypeArtifactSynced is the event_type of every notification.
const EventTypeArtifactSynced = "artifact_synced"

// SyncedEvent is the payload published after a confirmed upload.
type SyncedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "artifact_synced"
	BridgeID        string `json:"bridge_id,omitempty"`
	Key             string `json:"key"`
	Event           string `json:"event,omitempty"`
	Filename        string `json:"filename"`
	RemoteID        string `json:"remote_id"`
	RemoteURL       string `json:"remote_url"`
	SizeKB          int64  `json:"size_kb"`
	Backend         string `json:"backend"`
	Timestamp       string `json:"timestamp"` // ISO 8601
}

// NewSyncedEvent builds the payload for a confirmed upload.
func NewSyncedEvent(a types.ArtifactSynced) *SyncedEvent {
	return &SyncedEvent{
		ContractVersion: types.Version,
		EventType:       EventTypeArtifactSynced,
		BridgeID:        a.BridgeID,
		Key:             a.Key,
		Event:           a.Event,
		Filename:        a.Filename,
		RemoteID:        a.RemoteID,
		RemoteURL:       a.RemoteURL,
		SizeKB:          a.SizeKB,
		Backend:         a.Backend,
		Timestamp:       a.SyncedAt.UTC().Format(time.RFC3339),
	}
}

// Publisher sends notifications to one downstream system.
type Publisher interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SyncedEvent) error

	// Close releases publisher resources.
	Close() error
}

// Notifier fans a confirmed upload out to every configured publisher.
type Notifier struct {
	publishers []Publisher
}

// New creates a notifier. Nil publishers are skipped.
func New(publishers ...Publisher) *Notifier {
	n := &Notifier{}
	for _, p := range publishers {
		if p != nil {
			n.publishers = append(n.publishers, p)
		}
	}
	return n
}

// Len returns the number of publishers.
func (n *Notifier) Len() int { return len(n.publishers) }

// NotifySynced publishes to every publisher and joins their errors.
func (n *Notifier) NotifySynced(ctx context.Context, a types.ArtifactSynced) error {
	event := NewSyncedEvent(a)
	var errs []error
	for _, p := range n.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (n *Notifier) Close() error {
	var errs []error
	for _, p := range n.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Retry calls fn up to 1+retries times with exponential backoff
// (500ms, 1s, 2s, ...) between attempts. A nil or permanent error stops
// early; permanent reports whether err must not be retried.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
