//nolint:revive // types is a common Go package naming convention
package types

import (
	"strings"
	"time"
)

// ArtifactUpload is one optimized capture handed to an upload backend.
type ArtifactUpload struct {
	// Key is the sync key, the slash-separated path relative to the capture root.
	Key string
	// Filename is the base name of the file.
	Filename string
	// ContentType is the MIME type of Data.
	ContentType string
	// Category is the remote media category (e.g. "photo").
	Category string
	Data     []byte
}

// ArtifactReceipt is a backend's confirmation of an upload.
// Both fields are set on success.
type ArtifactReceipt struct {
	ID  string
	URL string
}

// ArtifactSynced describes a confirmed upload.
// Published to notification sinks and appended to the sync journal.
type ArtifactSynced struct {
	Key       string    `json:"key"`
	Event     string    `json:"event,omitempty"`
	Filename  string    `json:"filename"`
	RemoteID  string    `json:"remote_id"`
	RemoteURL string    `json:"remote_url"`
	SizeKB    int64     `json:"size_kb"`
	Backend   string    `json:"backend"`
	BridgeID  string    `json:"bridge_id,omitempty"`
	SyncedAt  time.Time `json:"synced_at"`
}

// EventOfKey returns the event slug encoded in a sync key, or "" for
// artifacts captured outside any event ("cloud/a.jpg").
func EventOfKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
