// Package framebuf holds the most recent camera frame for the whole process.
//
// The buffer is a single slot with last-write-wins semantics. The camera
// poller writes into it, every other consumer (local stream endpoints, the
// snapshot fanout, status reporting) reads from it. A stored Frame is never
// mutated, so readers holding one can never observe a torn image.
//
// The review override replaces the live feed with a just-captured image for a
// fixed dwell time. While it is active the poller pauses and camera writes are
// refused.
package framebuf

import (
	"sync"
	"time"
)

// Default timing parameters.
const (
	// DefaultStaleAfter is the freshness window: older frames are unusable.
	DefaultStaleAfter = 2 * time.Second
	// DefaultReviewDwell is how long an injected review image is shown.
	DefaultReviewDwell = 2 * time.Second
)

// Frame is an immutable JPEG image with its capture metadata.
// Data must not be modified by readers.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
	// Seq increases by one on every store, review injections included.
	Seq uint64
	// Review marks an injected review image rather than a live frame.
	Review bool
}

// Age returns how old the frame is at now.
func (f Frame) Age(now time.Time) time.Duration {
	return now.Sub(f.CapturedAt)
}

// Config configures a Buffer.
type Config struct {
	// StaleAfter is the freshness window (default 2s).
	StaleAfter time.Duration
	// ReviewDwell is the review override duration (default 2s).
	ReviewDwell time.Duration
	// Now is the clock (default time.Now).
	Now func() time.Time
}

// Buffer is the process-wide single-slot frame cache.
// Safe for concurrent use.
type Buffer struct {
	staleAfter  time.Duration
	reviewDwell time.Duration
	now         func() time.Time

	mu          sync.RWMutex
	frame       *Frame
	seq         uint64
	reviewUntil time.Time
	changed     chan struct{}
}

// New creates an empty buffer.
func New(cfg Config) *Buffer {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.ReviewDwell <= 0 {
		cfg.ReviewDwell = DefaultReviewDwell
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Buffer{
		staleAfter:  cfg.StaleAfter,
		reviewDwell: cfg.ReviewDwell,
		now:         cfg.Now,
		changed:     make(chan struct{}),
	}
}

// Now returns the buffer's clock reading.
func (b *Buffer) Now() time.Time {
	return b.now()
}

// StaleAfter returns the configured freshness window.
func (b *Buffer) StaleAfter() time.Duration {
	return b.staleAfter
}

// Store replaces the slot with a live camera frame.
// Returns false without storing when the review override is active.
func (b *Buffer) Store(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Before(b.reviewUntil) {
		return false
	}
	b.publishLocked(&Frame{Data: data, CapturedAt: now, Review: false})
	return true
}

// InjectReview replaces the slot with a just-captured image and activates
// the review override for the dwell time.
func (b *Buffer) InjectReview(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.reviewUntil = now.Add(b.reviewDwell)
	b.publishLocked(&Frame{Data: data, CapturedAt: now, Review: true})
}

// publishLocked stores f and wakes every waiter. Caller holds mu.
func (b *Buffer) publishLocked(f *Frame) {
	b.seq++
	f.Seq = b.seq
	b.frame = f
	close(b.changed)
	b.changed = make(chan struct{})
}

// ReviewActive reports whether the review override is in effect.
// The override clears itself once the dwell time has elapsed.
func (b *Buffer) ReviewActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.now().Before(b.reviewUntil)
}

// Latest returns the last stored frame regardless of age.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return Frame{}, false
	}
	return *b.frame, true
}

// Fresh returns the last frame only if it is younger than the freshness
// window. A stale frame is reported as absent.
func (b *Buffer) Fresh() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return Frame{}, false
	}
	if b.frame.Age(b.now()) >= b.staleAfter {
		return Frame{}, false
	}
	return *b.frame, true
}

// Changed returns a channel closed on the next store.
// Streaming consumers wait on it instead of polling:
//
//	for {
//		ch := buf.Changed()
//		frame, ok := buf.Fresh()
//		...
//		<-ch
//	}
func (b *Buffer) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// Status is a point-in-time view of the buffer for status reporting.
type Status struct {
	HasFrame bool   `json:"has_frame"`
	Fresh    bool   `json:"fresh"`
	AgeMs    int64  `json:"age_ms"`
	Bytes    int    `json:"bytes"`
	Seq      uint64 `json:"seq"`
	Review   bool   `json:"review"`
}

// Status reports the buffer state. A stale frame reports Fresh=false.
func (b *Buffer) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.now()
	st := Status{Review: now.Before(b.reviewUntil)}
	if b.frame == nil {
		return st
	}
	age := b.frame.Age(now)
	st.HasFrame = true
	st.AgeMs = age.Milliseconds()
	st.Fresh = age < b.staleAfter
	st.Bytes = len(b.frame.Data)
	st.Seq = b.frame.Seq
	return st
}
