package journal

import (
	"encoding/json"
	"time"

	"github.com/pithecene-io/boothbridge/types"
)

// RecordKindArtifactSynced is the record_kind discriminator for confirmed uploads.
const RecordKindArtifactSynced = "artifact_synced"

// noEvent is the event partition value for captures outside any event.
const noEvent = "_none"

// dayFormat is the layout of the day partition key.
const dayFormat = "2006-01-02"

// SyncedRecord is the storage format of one confirmed upload.
type SyncedRecord struct {
	// Record discriminator
	RecordKind string `json:"record_kind"`

	Key       string `json:"key"`
	Filename  string `json:"filename"`
	RemoteID  string `json:"remote_id"`
	RemoteURL string `json:"remote_url"`
	SizeKB    int64  `json:"size_kb"`
	Backend   string `json:"backend"`
	BridgeID  string `json:"bridge_id,omitempty"`
	SyncedAt  string `json:"synced_at"`

	// Partition keys (used by Lode HiveLayout)
	Event string `json:"event"`
	Day   string `json:"day"`
}

// toRecordMap converts a confirmed upload to the map form written to Lode.
func toRecordMap(ev types.ArtifactSynced, bridgeID string) map[string]any {
	event := ev.Event
	if event == "" {
		event = noEvent
	}
	if ev.BridgeID != "" {
		bridgeID = ev.BridgeID
	}
	m := map[string]any{
		"record_kind": RecordKindArtifactSynced,
		"key":         ev.Key,
		"filename":    ev.Filename,
		"remote_id":   ev.RemoteID,
		"remote_url":  ev.RemoteURL,
		"size_kb":     ev.SizeKB,
		"backend":     ev.Backend,
		"synced_at":   ev.SyncedAt.UTC().Format(time.RFC3339Nano),
		"event":       event,
		"day":         ev.SyncedAt.UTC().Format(dayFormat),
	}
	if bridgeID != "" {
		m["bridge_id"] = bridgeID
	}
	return m
}

// fromRecordMap decodes a record read back from Lode.
// Returns false for records of another kind.
func fromRecordMap(m map[string]any) (types.ArtifactSynced, bool) {
	if toString(m["record_kind"]) != RecordKindArtifactSynced {
		return types.ArtifactSynced{}, false
	}
	ev := types.ArtifactSynced{
		Key:       toString(m["key"]),
		Filename:  toString(m["filename"]),
		RemoteID:  toString(m["remote_id"]),
		RemoteURL: toString(m["remote_url"]),
		SizeKB:    toInt64(m["size_kb"]),
		Backend:   toString(m["backend"]),
		BridgeID:  toString(m["bridge_id"]),
	}
	if e := toString(m["event"]); e != noEvent {
		ev.Event = e
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(m["synced_at"])); err == nil {
		ev.SyncedAt = ts
	}
	return ev, true
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a codec may produce.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
