// Package syncstate persists the map of artifacts already confirmed by the
// remote store. A key present in the map is never uploaded again.
package syncstate

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/pithecene-io/boothbridge/fsx"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/types"
)

// Store is the in-memory sync map backed by a JSON file.
// The in-memory map is authoritative; persistence failures are reported to
// the caller but never roll back a recorded entry.
type Store struct {
	path   string
	logger *log.Logger
	now    func() time.Time

	mu   sync.RWMutex
	file types.SyncFile
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for lastCheck.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the sync map at path. A missing file yields an empty store.
// An unreadable or corrupt file is moved aside and the store starts empty;
// artifacts it listed are uploaded once more on the next cycle.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("syncstate: path is required")
	}
	s := &Store{
		path: path,
		now:  time.Now,
		file: types.SyncFile{Synced: map[string]types.SyncRecord{}},
	}
	for _, opt := range opts {
		opt(s)
	}

	var loaded types.SyncFile
	err := fsx.ReadJSON(path, &loaded)
	switch {
	case err == nil:
		if loaded.Synced == nil {
			loaded.Synced = map[string]types.SyncRecord{}
		}
		s.file = loaded
	case errors.Is(err, fs.ErrNotExist):
	default:
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("syncstate: %w (move aside: %v)", err, rerr)
		}
		s.logger.Warn("sync map unreadable, starting empty", map[string]any{
			"path":     path,
			"moved_to": aside,
			"error":    err.Error(),
		})
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Has reports whether key was already synced.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.file.Synced[key]
	return ok
}

// Get returns the record for key.
func (s *Store) Get(key string) (types.SyncRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.file.Synced[key]
	return rec, ok
}

// Put records key and persists the map immediately.
// The record stays in memory even when the write fails.
func (s *Store) Put(key string, rec types.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Synced[key] = rec
	return s.persistLocked()
}

// Touch stamps lastCheck and persists the map.
func (s *Store) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.file.LastCheck = &now
	return s.persistLocked()
}

// LastCheck returns the time of the last completed cycle, if any.
func (s *Store) LastCheck() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file.LastCheck == nil {
		return time.Time{}, false
	}
	return *s.file.LastCheck, true
}

// Len returns the number of synced keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.file.Synced)
}

// Keys returns the synced keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.file.Synced))
}

// Snapshot returns a deep copy of the map.
func (s *Store) Snapshot() types.SyncFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := types.SyncFile{Synced: maps.Clone(s.file.Synced)}
	if s.file.LastCheck != nil {
		t := *s.file.LastCheck
		out.LastCheck = &t
	}
	return out
}

func (s *Store) persistLocked() error {
	if err := fsx.WriteJSONAtomic(s.path, s.file); err != nil {
		return fmt.Errorf("syncstate: persist: %w", err)
	}
	return nil
}
