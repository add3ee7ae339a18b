package types

import "time"

// SyncRecord describes one artifact confirmed by the remote store.
// A record exists only after the remote acknowledged the upload.
type SyncRecord struct {
	// RemoteID is the identifier assigned by the remote store.
	RemoteID string `json:"remoteId"`
	// RemoteURL is where the remote store serves the artifact.
	RemoteURL string `json:"remoteUrl"`
	// SyncedAt is when the upload was confirmed.
	SyncedAt time.Time `json:"syncedAt"`
	// LocalPath is the absolute path the artifact was read from.
	LocalPath string `json:"localPath"`
	// SizeKB is the uploaded payload size in KiB.
	SizeKB int64 `json:"sizeKB"`
}

// SyncFile is the on-disk shape of the sync map.
type SyncFile struct {
	Synced    map[string]SyncRecord `json:"synced"`
	LastCheck *time.Time            `json:"lastCheck,omitempty"`
}

// SyncResult aggregates the outcome of one synchronization cycle.
type SyncResult struct {
	// Created counts optimized copies written during the cycle.
	Created int `json:"created"`
	// Uploaded counts artifacts confirmed by the remote during the cycle.
	Uploaded int `json:"uploaded"`
	// Skipped counts artifacts already present in the sync map.
	Skipped int `json:"skipped"`
	// Errors counts per-file failures (optimization or upload).
	Errors int `json:"errors"`
}

// Add folds another result into r.
func (r *SyncResult) Add(o SyncResult) {
	r.Created += o.Created
	r.Uploaded += o.Uploaded
	r.Skipped += o.Skipped
	r.Errors += o.Errors
}
