// Package fanout forwards the live frame to the cloud snapshot endpoint.
//
// Policy is latest-value-wins: each tick sends whatever fresh frame the
// buffer holds, failures are dropped, and a slow POST never delays the next
// tick. When the in-flight limit is reached the tick is skipped.
package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/remote"
)

// Default fanout parameters.
const (
	DefaultInterval    = 200 * time.Millisecond
	DefaultMaxInFlight = 2
	DefaultTimeout     = 2 * time.Second
)

// Poster sends one JPEG to the snapshot endpoint.
// Implemented by *remote.Client.
type Poster interface {
	PostSnapshot(ctx context.Context, jpeg []byte) error
}

// Config configures the pusher.
type Config struct {
	// Interval between ticks (default 200ms).
	Interval time.Duration
	// MaxInFlight bounds concurrent POSTs (default 2).
	MaxInFlight int
	// Timeout bounds each POST (default 2s).
	Timeout time.Duration
	// Enabled is the initial toggle state.
	Enabled bool
}

// TickResult classifies one tick.
type TickResult int

const (
	// TickSent means a POST was dispatched.
	TickSent TickResult = iota
	// TickDisabled means the pusher is switched off.
	TickDisabled
	// TickStale means no frame younger than the freshness window exists.
	TickStale
	// TickBusy means the in-flight limit was reached.
	TickBusy
)

func (r TickResult) String() string {
	switch r {
	case TickSent:
		return "sent"
	case TickDisabled:
		return "disabled"
	case TickStale:
		return "stale"
	case TickBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Pusher periodically posts the freshest frame to the cloud.
type Pusher struct {
	cfg     Config
	buf     *framebuf.Buffer
	poster  Poster
	logger  *log.Logger
	metrics *metrics.Collector
	failLog *log.Throttle

	enabled atomic.Bool
	slots   chan struct{}
	wg      sync.WaitGroup
}

// New creates a pusher.
func New(cfg Config, buf *framebuf.Buffer, poster Poster, logger *log.Logger, collector *metrics.Collector) (*Pusher, error) {
	if buf == nil || poster == nil {
		return nil, errors.New("fanout: frame buffer and poster are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Pusher{
		cfg:     cfg,
		buf:     buf,
		poster:  poster,
		logger:  logger,
		metrics: collector,
		failLog: log.NewThrottle(time.Minute),
		slots:   make(chan struct{}, cfg.MaxInFlight),
	}
	p.enabled.Store(cfg.Enabled)
	return p, nil
}

// SetEnabled switches network I/O on or off. The loop keeps ticking either way.
func (p *Pusher) SetEnabled(on bool) {
	if p.enabled.Swap(on) != on {
		p.logger.Info("snapshot fanout toggled", map[string]any{"enabled": on})
	}
}

// Enabled reports the toggle state.
func (p *Pusher) Enabled() bool {
	return p.enabled.Load()
}

// Run ticks until ctx is canceled, then waits for in-flight POSTs.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one fanout decision. A POST, if any, runs in the background.
func (p *Pusher) Tick(ctx context.Context) TickResult {
	if !p.enabled.Load() {
		return TickDisabled
	}

	frame, ok := p.buf.Fresh()
	if !ok {
		p.metrics.IncSnapshotSkippedStale()
		return TickStale
	}

	select {
	case p.slots <- struct{}{}:
	default:
		p.metrics.IncSnapshotSkippedBusy()
		return TickBusy
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		p.post(ctx, frame)
	}()
	return TickSent
}

// Wait blocks until every dispatched POST has finished.
func (p *Pusher) Wait() {
	p.wg.Wait()
}

func (p *Pusher) post(ctx context.Context, frame framebuf.Frame) {
	postCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.poster.PostSnapshot(postCtx, frame.Data); err != nil {
		p.metrics.IncSnapshotFailed()
		if ctx.Err() != nil {
			return
		}
		if remote.IsOffline(err) {
			p.logger.Debug("snapshot dropped", map[string]any{"error": err.Error()})
			return
		}
		p.failLog.Warn(p.logger, "snapshot", "snapshot dropped", map[string]any{
			"seq":   frame.Seq,
			"error": err.Error(),
		})
		return
	}
	p.failLog.Reset("snapshot")
	p.metrics.IncSnapshotSent()
}
