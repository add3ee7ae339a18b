// Package bridge assembles the bridge loops from one configuration and runs
// them until shutdown.
//
// The camera poller, snapshot fanout, artifact synchronizer, command relay
// and local API each run in their own goroutine. They share the frame buffer,
// the sync state store and the event context, which are created here and
// handed to each loop at construction.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/collab"
	"github.com/pithecene-io/boothbridge/eventctx"
	"github.com/pithecene-io/boothbridge/fanout"
	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/journal"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/notify"
	notifyredis "github.com/pithecene-io/boothbridge/notify/redis"
	"github.com/pithecene-io/boothbridge/notify/webhook"
	"github.com/pithecene-io/boothbridge/relay"
	"github.com/pithecene-io/boothbridge/relay/redisqueue"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/s3store"
	"github.com/pithecene-io/boothbridge/syncer"
	"github.com/pithecene-io/boothbridge/syncstate"
	"github.com/pithecene-io/boothbridge/types"
)

// Bridge owns the shared state and every loop.
type Bridge struct {
	cfg     Config
	meta    types.BridgeMeta
	logger  *log.Logger
	metrics *metrics.Collector

	frames *framebuf.Buffer
	events *eventctx.Context
	store  *syncstate.Store

	poller  *camera.Poller
	remote  *remote.Client
	fanout  *fanout.Pusher
	syncer  *syncer.Syncer
	journal *journal.Journal
	relay   *relay.Relay
	api     *api.Server

	closers []io.Closer
}

// New validates cfg and builds every enabled component. Nothing runs
// until Run is called. Close releases connections when Run is not used.
func New(ctx context.Context, cfg Config, meta types.BridgeMeta, logger *log.Logger) (*Bridge, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}
	if err := os.MkdirAll(cfg.CaptureRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create capture root: %w", err)
	}

	b := &Bridge{
		cfg:    cfg,
		meta:   meta,
		logger: logger,
		metrics: metrics.NewCollector(meta.BridgeID, uploadBackendLabel(cfg),
			commandSourceLabel(cfg)),
		frames: framebuf.New(cfg.Frames),
	}

	if err := b.build(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func uploadBackendLabel(cfg Config) string {
	if cfg.Sync.Disabled {
		return "disabled"
	}
	return cfg.Sync.Backend
}

func commandSourceLabel(cfg Config) string {
	if cfg.Commands.Disabled {
		return "disabled"
	}
	return cfg.Commands.Source
}

func (b *Bridge) build(ctx context.Context) error {
	var err error
	cfg := b.cfg

	optimized := cfg.Sync.OptimizedDir
	if optimized == "" {
		optimized = syncer.DefaultOptimizedDir
	}
	b.events, err = eventctx.Load(cfg.CaptureRoot, cfg.EventMarkerPath, b.logger.Named("eventctx"),
		eventctx.WithReserved(optimized))
	if err != nil {
		return err
	}

	b.poller, err = camera.NewPoller(cfg.Camera, b.frames, b.logger.Named("camera"), b.metrics)
	if err != nil {
		return err
	}

	if cfg.Remote.BaseURL != "" {
		b.remote, err = remote.New(cfg.Remote)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, b.remote)
	}

	if !cfg.Fanout.Disabled {
		b.fanout, err = fanout.New(cfg.Fanout.Config, b.frames, b.remote, b.logger.Named("fanout"), b.metrics)
		if err != nil {
			return err
		}
	}

	if !cfg.Sync.Disabled {
		if err := b.buildSyncer(ctx); err != nil {
			return err
		}
	}

	if !cfg.Commands.Disabled {
		if err := b.buildRelay(); err != nil {
			return err
		}
	}

	if !cfg.API.Disabled {
		deps := api.Deps{
			Meta:    b.meta,
			Frames:  b.frames,
			Events:  b.events,
			Camera:  b.poller,
			Metrics: b.metrics,
		}
		// Typed nil pointers must not reach the interface fields.
		if b.fanout != nil {
			deps.Fanout = b.fanout
		}
		if b.syncer != nil {
			deps.Syncer = b.syncer
		}
		if b.journal != nil {
			deps.Journal = b.journal
		}
		b.api, err = api.New(cfg.API.Config, deps, b.logger.Named("api"))
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) buildSyncer(ctx context.Context) error {
	cfg := b.cfg
	store, err := syncstate.Open(cfg.SyncStatePath, syncstate.WithLogger(b.logger.Named("syncstate")))
	if err != nil {
		return err
	}
	b.store = store

	var uploader syncer.Uploader
	switch cfg.Sync.Backend {
	case BackendS3:
		client, err := s3store.NewClient(ctx, cfg.Sync.S3)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		up, err := s3store.NewUploader(client, cfg.Sync.S3)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		uploader = up
	default:
		uploader = &syncer.RemoteUploader{Client: b.remote}
	}

	opts := []syncer.Option{
		syncer.WithLogger(b.logger.Named("syncer")),
		syncer.WithMetrics(b.metrics),
		syncer.WithTranscoder(syncer.ImageTranscoder{
			MaxDimension: cfg.Sync.MaxDimension,
			Quality:      cfg.Sync.Quality,
		}),
	}

	jr, err := b.buildJournal(ctx)
	if err != nil {
		return err
	}
	if jr != nil {
		b.journal = jr
		opts = append(opts, syncer.WithJournal(jr))
	}

	n, err := b.buildNotifier()
	if err != nil {
		return err
	}
	if n != nil {
		opts = append(opts, syncer.WithNotifier(n))
	}

	b.syncer, err = syncer.New(syncer.Config{
		CaptureRoot:  cfg.CaptureRoot,
		OptimizedDir: cfg.Sync.OptimizedDir,
		Category:     cfg.Sync.Category,
		Backend:      cfg.Sync.Backend,
		BridgeID:     b.meta.BridgeID,
		Interval:     cfg.Sync.Interval,
		WarmUp:       cfg.Sync.WarmUp,
	}, store, uploader, opts...)
	return err
}

func (b *Bridge) buildJournal(ctx context.Context) (*journal.Journal, error) {
	jc := b.cfg.Journal
	cfg := journal.Config{Dataset: jc.Dataset, BridgeID: b.meta.BridgeID}

	switch jc.Backend {
	case JournalMemory:
		return journal.NewMemory(cfg)
	case JournalFS:
		return journal.NewFS(cfg, jc.Path)
	case JournalS3:
		bucket, prefix := s3store.ParsePath(jc.Path)
		s3cfg := jc.S3
		s3cfg.Bucket = bucket
		client, err := s3store.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		return journal.NewS3(cfg, client, bucket, prefix)
	default:
		return nil, nil
	}
}

func (b *Bridge) buildNotifier() (*notify.Notifier, error) {
	nc := b.cfg.Notify
	var pubs []notify.Publisher

	if nc.Webhook.URL != "" {
		p, err := webhook.New(nc.Webhook)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		pubs = append(pubs, p)
	}
	if nc.Redis.URL != "" {
		p, err := notifyredis.New(nc.Redis)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		pubs = append(pubs, p)
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	n := notify.New(pubs...)
	b.closers = append(b.closers, n)
	return n, nil
}

func (b *Bridge) buildRelay() error {
	cfg := b.cfg

	var source relay.Source
	switch cfg.Commands.Source {
	case SourceRedis:
		q, err := redisqueue.New(cfg.Commands.Redis)
		if err != nil {
			return fmt.Errorf("commands: %w", err)
		}
		b.closers = append(b.closers, q)
		source = q
	default:
		source = b.remote
	}

	opts := []relay.Option{
		relay.WithLogger(b.logger.Named("relay")),
		relay.WithMetrics(b.metrics),
	}
	if cfg.Email.URL != "" {
		m, err := collab.NewMailer(cfg.Email)
		if err != nil {
			return err
		}
		opts = append(opts, relay.WithMailer(m))
	}
	if cfg.Print.URL != "" {
		p, err := collab.NewPrinter(cfg.Print)
		if err != nil {
			return err
		}
		opts = append(opts, relay.WithPrinter(p))
	}

	var localBase string
	if !cfg.API.Disabled {
		localBase = cfg.API.PublicURL
	}

	var err error
	b.relay, err = relay.New(relay.Config{
		Interval:     cfg.Commands.Interval,
		LocalBaseURL: localBase,
		OptimizedDir: cfg.Sync.OptimizedDir,
	}, source, b.events, opts...)
	return err
}

// Run starts every loop and blocks until ctx is canceled and all loops have
// returned. A loop failing for any reason other than cancellation stops the
// whole bridge and is returned. Run closes the bridge before returning.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { _ = b.Close() }()

	type loop struct {
		name string
		run  func(context.Context) error
	}
	loops := []loop{{"camera", b.poller.Run}}
	if b.fanout != nil {
		loops = append(loops, loop{"fanout", b.fanout.Run})
	}
	if b.syncer != nil {
		loops = append(loops, loop{"syncer", b.syncer.Run})
	}
	if b.relay != nil {
		loops = append(loops, loop{"relay", b.relay.Run})
	}
	if b.api != nil {
		loops = append(loops, loop{"api", b.api.Run})
	}

	names := make([]string, len(loops))
	for i, l := range loops {
		names[i] = l.name
	}
	b.logger.Info("bridge started", map[string]any{
		"capture_root": b.cfg.CaptureRoot,
		"loops":        names,
		"event":        b.events.Slug(),
	})

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.run(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}
			b.logger.Error("loop failed, stopping bridge", map[string]any{
				"loop":  l.name,
				"error": err.Error(),
			})
			errOnce.Do(func() {
				firstErr = fmt.Errorf("%s: %w", l.name, err)
				cancel()
			})
		}()
	}
	wg.Wait()

	b.logger.Info("bridge stopped", nil)
	return firstErr
}

// Close releases network clients. Safe to call more than once.
func (b *Bridge) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Frames returns the shared frame buffer.
func (b *Bridge) Frames() *framebuf.Buffer { return b.frames }

// Events returns the shared event context.
func (b *Bridge) Events() *eventctx.Context { return b.events }

// Store returns the sync state store, nil when sync is disabled.
func (b *Bridge) Store() *syncstate.Store { return b.store }

// Syncer returns the synchronizer, nil when sync is disabled.
func (b *Bridge) Syncer() *syncer.Syncer { return b.syncer }

// Journal returns the sync journal, nil when not configured.
func (b *Bridge) Journal() *journal.Journal { return b.journal }

// Fanout returns the snapshot pusher, nil when disabled.
func (b *Bridge) Fanout() *fanout.Pusher { return b.fanout }

// API returns the local API server, nil when disabled.
func (b *Bridge) API() *api.Server { return b.api }

// Metrics returns the bridge-wide collector.
func (b *Bridge) Metrics() *metrics.Collector { return b.metrics }
