// Package metrics provides process-lifetime counters for the bridge loops.
//
// The Collector is a leaf package with no internal dependencies. Each loop
// records its own outcomes; the local API and the status command read a
// Snapshot.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Camera poller
	FramesStored     int64 `json:"frames_stored"`
	FramesRefused    int64 `json:"frames_refused"`
	FramesUndersized int64 `json:"frames_undersized"`
	FramesBadStatus  int64 `json:"frames_bad_status"`
	PortRotations    int64 `json:"port_rotations"`

	// Snapshot fanout
	SnapshotsSent         int64 `json:"snapshots_sent"`
	SnapshotsFailed       int64 `json:"snapshots_failed"`
	SnapshotsSkippedStale int64 `json:"snapshots_skipped_stale"`
	SnapshotsSkippedBusy  int64 `json:"snapshots_skipped_busy"`

	// Artifact synchronizer
	SyncCycles          int64 `json:"sync_cycles"`
	SyncCreated         int64 `json:"sync_created"`
	SyncUploaded        int64 `json:"sync_uploaded"`
	SyncErrors          int64 `json:"sync_errors"`
	SyncPersistFailures int64 `json:"sync_persist_failures"`
	NotifyFailures      int64 `json:"notify_failures"`
	JournalFailures     int64 `json:"journal_failures"`

	// Command relay
	CommandPolls      int64 `json:"command_polls"`
	CommandPollErrors int64 `json:"command_poll_errors"`
	CommandsApplied   int64 `json:"commands_applied"`
	CommandsIgnored   int64 `json:"commands_ignored"`
	CommandsFailed    int64 `json:"commands_failed"`

	// Dimensions (informational, set at construction)
	BridgeID      string `json:"bridge_id"`
	UploadBackend string `json:"upload_backend"`
	CommandSource string `json:"command_source"`
}

// Collector accumulates counters for the lifetime of the process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(bridgeID, uploadBackend, commandSource string) *Collector {
	return &Collector{s: Snapshot{
		BridgeID:      bridgeID,
		UploadBackend: uploadBackend,
		CommandSource: commandSource,
	}}
}

// add increments the counter selected by field by n.
func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Camera poller ---

// IncFrameStored records a frame written into the buffer.
func (c *Collector) IncFrameStored() { c.add(func(s *Snapshot) *int64 { return &s.FramesStored }, 1) }

// IncFrameRefused records a frame dropped because the review override was active.
func (c *Collector) IncFrameRefused() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesRefused }, 1)
}

// IncFrameUndersized records a 200 response below the minimum frame size.
func (c *Collector) IncFrameUndersized() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesUndersized }, 1)
}

// IncFrameBadStatus records a non-200 camera response.
func (c *Collector) IncFrameBadStatus() {
	c.add(func(s *Snapshot) *int64 { return &s.FramesBadStatus }, 1)
}

// IncPortRotation records a camera port rotation after a connection failure.
func (c *Collector) IncPortRotation() {
	c.add(func(s *Snapshot) *int64 { return &s.PortRotations }, 1)
}

// --- Snapshot fanout ---

// IncSnapshotSent records a snapshot accepted by the remote.
func (c *Collector) IncSnapshotSent() {
	c.add(func(s *Snapshot) *int64 { return &s.SnapshotsSent }, 1)
}

// IncSnapshotFailed records a snapshot POST that failed (dropped, not retried).
func (c *Collector) IncSnapshotFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.SnapshotsFailed }, 1)
}

// IncSnapshotSkippedStale records a tick skipped by the freshness gate.
func (c *Collector) IncSnapshotSkippedStale() {
	c.add(func(s *Snapshot) *int64 { return &s.SnapshotsSkippedStale }, 1)
}

// IncSnapshotSkippedBusy records a tick dropped because too many POSTs were in flight.
func (c *Collector) IncSnapshotSkippedBusy() {
	c.add(func(s *Snapshot) *int64 { return &s.SnapshotsSkippedBusy }, 1)
}

// --- Artifact synchronizer ---

// AbsorbSyncCycle records the counts of one completed sync cycle.
func (c *Collector) AbsorbSyncCycle(created, uploaded, errors int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.SyncCycles++
	c.s.SyncCreated += int64(created)
	c.s.SyncUploaded += int64(uploaded)
	c.s.SyncErrors += int64(errors)
	c.mu.Unlock()
}

// IncSyncPersistFailure records a failed write of the sync map.
func (c *Collector) IncSyncPersistFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.SyncPersistFailures }, 1)
}

// IncNotifyFailure records a failed artifact_synced notification.
func (c *Collector) IncNotifyFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.NotifyFailures }, 1)
}

// IncJournalFailure records a failed journal append.
func (c *Collector) IncJournalFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.JournalFailures }, 1)
}

// --- Command relay ---

// IncCommandPoll records a poll of the command source.
func (c *Collector) IncCommandPoll() {
	c.add(func(s *Snapshot) *int64 { return &s.CommandPolls }, 1)
}

// IncCommandPollError records a failed poll.
func (c *Collector) IncCommandPollError() {
	c.add(func(s *Snapshot) *int64 { return &s.CommandPollErrors }, 1)
}

// IncCommandApplied records a command whose side effect completed.
func (c *Collector) IncCommandApplied() {
	c.add(func(s *Snapshot) *int64 { return &s.CommandsApplied }, 1)
}

// IncCommandIgnored records an unknown command type.
func (c *Collector) IncCommandIgnored() {
	c.add(func(s *Snapshot) *int64 { return &s.CommandsIgnored }, 1)
}

// IncCommandFailed records a command whose side effect failed.
func (c *Collector) IncCommandFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.CommandsFailed }, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
