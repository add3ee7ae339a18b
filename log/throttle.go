package log

import (
	"sync"
	"time"
)

// Throttle rate-limits repeated log messages by key.
// Loops that hit the same failure on every tick (camera offline, cloud
// unreachable) log it once per window and count what was suppressed.
type Throttle struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*throttleEntry
}

type throttleEntry struct {
	last       time.Time
	suppressed int
}

// NewThrottle creates a throttle allowing one message per key per window.
func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window:  window,
		now:     time.Now,
		entries: make(map[string]*throttleEntry),
	}
}

// WithClock replaces the time source. Used by tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Allow reports whether a message for key may be emitted now.
// When it returns true, suppressed is the number of messages dropped for
// key since the previous emission.
func (t *Throttle) Allow(key string) (ok bool, suppressed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, exists := t.entries[key]
	if !exists {
		t.entries[key] = &throttleEntry{last: now}
		return true, 0
	}
	if now.Sub(e.last) < t.window {
		e.suppressed++
		return false, 0
	}
	suppressed = e.suppressed
	e.last = now
	e.suppressed = 0
	return true, suppressed
}

// Reset forgets key, so the next message for it is emitted immediately.
// Loops call this when the failure condition clears.
func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Len returns the number of keys currently tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Warn logs through l at warn level if the key is not throttled.
func (t *Throttle) Warn(l *Logger, key, message string, fields map[string]any) {
	ok, suppressed := t.Allow(key)
	if !ok {
		return
	}
	if suppressed > 0 {
		fields = withSuppressed(fields, suppressed)
	}
	l.Warn(message, fields)
}

// Info logs through l at info level if the key is not throttled.
func (t *Throttle) Info(l *Logger, key, message string, fields map[string]any) {
	ok, suppressed := t.Allow(key)
	if !ok {
		return
	}
	if suppressed > 0 {
		fields = withSuppressed(fields, suppressed)
	}
	l.Info(message, fields)
}

func withSuppressed(fields map[string]any, n int) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["suppressed"] = n
	return out
}
