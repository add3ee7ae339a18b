// Package syncer mirrors locally captured media to the remote store.
//
// A cycle has two phases. The optimization phase writes a cloud-optimized
// copy of every original found in the capture root or an event directory
// into the sibling "cloud" directory. The upload phase sends every file under
// a "cloud" directory whose sync key is not yet recorded, and records it only
// after the remote confirmed it.
//
// Sync keys are slash-separated paths relative to the capture root, e.g.
// "wedding_jana/cloud/a.jpg". A recorded key is never uploaded again.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/boothbridge/fsx"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/syncstate"
	"github.com/pithecene-io/boothbridge/types"
)

// ErrCycleInProgress is returned when RunCycle is invoked while another
// cycle is still running.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Defaults.
const (
	DefaultOptimizedDir = "cloud"
	DefaultCategory     = "photo"
	DefaultInterval     = 30 * time.Second
	DefaultWarmUp       = 5 * time.Second
)

// DefaultExtensions are the media extensions picked up by a cycle.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Config configures the synchronizer.
type Config struct {
	// CaptureRoot is the local capture directory (required).
	CaptureRoot string
	// OptimizedDir is the per-directory optimized output name (default "cloud").
	OptimizedDir string
	// Extensions lists media extensions, lower case with dot.
	Extensions []string
	// Category is sent with each upload (default "photo").
	Category string
	// Backend names the upload backend in notifications ("http", "s3").
	Backend string
	// BridgeID is stamped on notifications.
	BridgeID string
	// Interval between scheduled cycles (default 30s).
	Interval time.Duration
	// WarmUp delays the first cycle (default 5s).
	WarmUp time.Duration
	// Now overrides the clock.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.OptimizedDir == "" {
		c.OptimizedDir = DefaultOptimizedDir
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.Category == "" {
		c.Category = DefaultCategory
	}
	if c.Backend == "" {
		c.Backend = "http"
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WarmUp < 0 {
		c.WarmUp = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Option configures optional collaborators.
type Option func(*Syncer)

// WithTranscoder replaces the default image transcoder.
func WithTranscoder(t Transcoder) Option { return func(s *Syncer) { s.transcoder = t } }

// WithNotifier publishes an event per confirmed upload.
func WithNotifier(n Notifier) Option { return func(s *Syncer) { s.notifier = n } }

// WithJournal appends a record per confirmed upload.
func WithJournal(j Journal) Option { return func(s *Syncer) { s.journal = j } }

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option { return func(s *Syncer) { s.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(s *Syncer) { s.metrics = c } }

// Status is a point-in-time view of the synchronizer.
type Status struct {
	Running   bool             `json:"running"`
	Synced    int              `json:"synced"`
	LastRunAt *time.Time       `json:"last_run_at,omitempty"`
	Last      types.SyncResult `json:"last"`
}

// Syncer runs synchronization cycles.
type Syncer struct {
	cfg        Config
	store      *syncstate.Store
	uploader   Uploader
	transcoder Transcoder
	notifier   Notifier
	journal    Journal
	logger     *log.Logger
	metrics    *metrics.Collector
	errLog     *log.Throttle

	running atomic.Bool

	mu        sync.Mutex
	last      types.SyncResult
	lastRunAt time.Time
}

// New creates a synchronizer.
func New(cfg Config, store *syncstate.Store, uploader Uploader, opts ...Option) (*Syncer, error) {
	if cfg.CaptureRoot == "" {
		return nil, errors.New("syncer: capture root is required")
	}
	if store == nil || uploader == nil {
		return nil, errors.New("syncer: store and uploader are required")
	}
	cfg.applyDefaults()

	s := &Syncer{
		cfg:        cfg,
		store:      store,
		uploader:   uploader,
		transcoder: ImageTranscoder{},
		errLog:     log.NewThrottle(time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run performs a cycle after the warm-up delay and then every interval
// until ctx is canceled. Cycle errors are logged, never returned.
func (s *Syncer) Run(ctx context.Context) error {
	warm := time.NewTimer(s.cfg.WarmUp)
	select {
	case <-ctx.Done():
		warm.Stop()
		return ctx.Err()
	case <-warm.C:
	}

	s.scheduled(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scheduled(ctx)
		}
	}
}

func (s *Syncer) scheduled(ctx context.Context) {
	res, err := s.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Debug("sync cycle skipped, previous cycle still running", nil)
	case err != nil && ctx.Err() == nil:
		s.logger.Warn("sync cycle failed", map[string]any{"error": err.Error()})
	case res.Created > 0 || res.Uploaded > 0 || res.Errors > 0:
		s.logger.Info("sync cycle complete", map[string]any{
			"created":  res.Created,
			"uploaded": res.Uploaded,
			"skipped":  res.Skipped,
			"errors":   res.Errors,
		})
	}
}

// Status returns the current state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.running.Load(),
		Synced:  s.store.Len(),
		Last:    s.last,
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		st.LastRunAt = &t
	}
	return st
}

// RunCycle performs one full optimization and upload pass.
// Per-file failures are counted in the result and never abort the cycle.
// Overlapping invocations return ErrCycleInProgress.
func (s *Syncer) RunCycle(ctx context.Context) (types.SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return types.SyncResult{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	var res types.SyncResult
	dirs, err := s.sourceDirs()
	if err != nil {
		return res, err
	}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Add(s.optimizeDir(ctx, dir))
	}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Add(s.uploadDir(ctx, filepath.Join(dir, s.cfg.OptimizedDir)))
	}

	if err := s.store.Touch(); err != nil {
		s.metrics.IncSyncPersistFailure()
		s.logger.Warn("sync map persist failed", map[string]any{"error": err.Error()})
	}
	s.metrics.AbsorbSyncCycle(res.Created, res.Uploaded, res.Errors)

	s.mu.Lock()
	s.last = res
	s.lastRunAt = s.cfg.Now()
	s.mu.Unlock()
	return res, nil
}

// sourceDirs lists the capture root followed by each event directory.
func (s *Syncer) sourceDirs() ([]string, error) {
	root := s.cfg.CaptureRoot
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("syncer: read capture root: %w", err)
	}

	dirs := []string{root}
	for _, e := range entries {
		if !e.IsDir() || fsx.IsHidden(e.Name()) || e.Name() == s.cfg.OptimizedDir {
			continue
		}
		dirs = append(dirs, filepath.Join(root, e.Name()))
	}
	return dirs, nil
}

// mediaFiles lists non-hidden media files directly inside dir, sorted by name.
// A missing directory yields no files.
func (s *Syncer) mediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || fsx.IsHidden(e.Name()) {
			continue
		}
		if !slices.Contains(s.cfg.Extensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// keyOf returns the slash-separated path of p relative to the capture root.
func (s *Syncer) keyOf(p string) (string, error) {
	rel, err := filepath.Rel(s.cfg.CaptureRoot, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// optimizeDir writes optimized copies of the originals in dir.
// Copies already on disk or already recorded in the sync map are left alone.
func (s *Syncer) optimizeDir(ctx context.Context, dir string) types.SyncResult {
	var res types.SyncResult
	names, err := s.mediaFiles(dir)
	if err != nil {
		res.Errors++
		s.logger.Warn("list originals failed", map[string]any{"dir": dir, "error": err.Error()})
		return res
	}

	outDir := filepath.Join(dir, s.cfg.OptimizedDir)
	for _, name := range names {
		if ctx.Err() != nil {
			return res
		}
		out := filepath.Join(outDir, name)
		key, err := s.keyOf(out)
		if err != nil {
			res.Errors++
			continue
		}
		if s.store.Has(key) {
			continue
		}
		if _, err := os.Stat(out); err == nil {
			continue
		}

		src := filepath.Join(dir, name)
		orig, err := os.ReadFile(src)
		if err != nil {
			res.Errors++
			s.logger.Warn("read original failed", map[string]any{"path": src, "error": err.Error()})
			continue
		}

		data, err := s.transcoder.Transcode(orig, filepath.Ext(name))
		if err != nil {
			s.logger.Debug("transcode failed, using original bytes", map[string]any{
				"path":  src,
				"error": err.Error(),
			})
			data = orig
		}

		if err := fsx.WriteFileAtomic(out, data, 0o644); err != nil {
			res.Errors++
			s.logger.Warn("write optimized copy failed", map[string]any{"path": out, "error": err.Error()})
			continue
		}
		res.Created++
	}
	return res
}

// uploadDir uploads every unrecorded media file in an optimized directory.
func (s *Syncer) uploadDir(ctx context.Context, dir string) types.SyncResult {
	var res types.SyncResult
	names, err := s.mediaFiles(dir)
	if err != nil {
		res.Errors++
		s.logger.Warn("list optimized files failed", map[string]any{"dir": dir, "error": err.Error()})
		return res
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return res
		}
		path := filepath.Join(dir, name)
		key, err := s.keyOf(path)
		if err != nil {
			res.Errors++
			continue
		}
		if s.store.Has(key) {
			res.Skipped++
			continue
		}
		if s.uploadOne(ctx, key, path) {
			res.Uploaded++
		} else {
			res.Errors++
		}
	}
	return res
}

// uploadOne uploads a single file and records it on confirmation.
func (s *Syncer) uploadOne(ctx context.Context, key, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("read artifact failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}

	name := filepath.Base(path)
	receipt, err := s.uploader.Upload(ctx, types.ArtifactUpload{
		Key:         key,
		Filename:    name,
		ContentType: contentTypeOf(name),
		Category:    s.cfg.Category,
		Data:        data,
	})
	if err != nil {
		fields := map[string]any{"key": key, "error": err.Error()}
		if remote.IsOffline(err) {
			s.errLog.Info(s.logger, "upload-offline", "remote unreachable, upload deferred", fields)
		} else {
			s.errLog.Warn(s.logger, "upload:"+key, "upload failed", fields)
		}
		return false
	}
	s.errLog.Reset("upload-offline")
	s.errLog.Reset("upload:" + key)

	rec := types.SyncRecord{
		RemoteID:  receipt.ID,
		RemoteURL: receipt.URL,
		SyncedAt:  s.cfg.Now().UTC(),
		LocalPath: path,
		SizeKB:    int64(len(data)) / 1024,
	}
	if err := s.store.Put(key, rec); err != nil {
		s.metrics.IncSyncPersistFailure()
		s.logger.Warn("sync map persist failed", map[string]any{"key": key, "error": err.Error()})
	}

	s.announce(ctx, types.ArtifactSynced{
		Key:       key,
		Event:     types.EventOfKey(key),
		Filename:  name,
		RemoteID:  rec.RemoteID,
		RemoteURL: rec.RemoteURL,
		SizeKB:    rec.SizeKB,
		Backend:   s.cfg.Backend,
		BridgeID:  s.cfg.BridgeID,
		SyncedAt:  rec.SyncedAt,
	})
	return true
}

// announce fans a confirmed upload out to the notifier and the journal.
// Both are best effort.
func (s *Syncer) announce(ctx context.Context, ev types.ArtifactSynced) {
	if s.notifier != nil {
		if err := s.notifier.NotifySynced(ctx, ev); err != nil {
			s.metrics.IncNotifyFailure()
			s.errLog.Warn(s.logger, "notify", "sync notification failed", map[string]any{
				"key":   ev.Key,
				"error": err.Error(),
			})
		}
	}
	if s.journal != nil {
		if err := s.journal.Append(ctx, ev); err != nil {
			s.metrics.IncJournalFailure()
			s.errLog.Warn(s.logger, "journal", "sync journal append failed", map[string]any{
				"key":   ev.Key,
				"error": err.Error(),
			})
		}
	}
}
