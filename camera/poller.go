// Package camera polls the local camera control daemon for live-view frames.
//
// A single Poller feeds the process-wide frame buffer so that consumers never
// contact the daemon themselves. The daemon's listening port is not known in
// advance: on connection-level failures the poller rotates through a fixed
// list of candidate ports until one answers.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
)

// Default poller parameters.
const (
	DefaultPath          = "/liveview.jpg"
	DefaultTimeout       = 2 * time.Second
	DefaultMinFrameBytes = 2000
	DefaultMaxFrameBytes = 16 * 1024 * 1024
	DefaultFrameDelay    = 50 * time.Millisecond
	DefaultRetryDelay    = 200 * time.Millisecond
	DefaultRotateDelay   = 500 * time.Millisecond
	DefaultReviewDelay   = 200 * time.Millisecond
)

// Config configures the poller.
type Config struct {
	// Host is the camera daemon host (default 127.0.0.1).
	Host string
	// Ports is the ordered candidate port list (required).
	Ports []int
	// Path is the live-view path (default /liveview.jpg).
	Path string
	// Timeout bounds each GET (default 2s).
	Timeout time.Duration
	// MinFrameBytes rejects smaller bodies as invalid (default 2000).
	MinFrameBytes int
	// MaxFrameBytes rejects larger bodies as invalid (default 16 MiB).
	MaxFrameBytes int64
	// FrameDelay follows a stored frame (default 50ms, ~20fps cap).
	FrameDelay time.Duration
	// RetryDelay follows an undersized body or non-200 status (default 200ms).
	RetryDelay time.Duration
	// RotateDelay follows a connection failure (default 500ms).
	RotateDelay time.Duration
	// ReviewDelay is the pause while the review override is active (default 200ms).
	ReviewDelay time.Duration
	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinFrameBytes <= 0 {
		c.MinFrameBytes = DefaultMinFrameBytes
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.FrameDelay <= 0 {
		c.FrameDelay = DefaultFrameDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RotateDelay <= 0 {
		c.RotateDelay = DefaultRotateDelay
	}
	if c.ReviewDelay <= 0 {
		c.ReviewDelay = DefaultReviewDelay
	}
}

// OutcomeKind classifies one poll iteration.
type OutcomeKind int

const (
	// OutcomeFrame means a frame was stored.
	OutcomeFrame OutcomeKind = iota
	// OutcomeReview means the review override paused polling.
	OutcomeReview
	// OutcomeRefused means a frame arrived but the review override had started.
	OutcomeRefused
	// OutcomeInvalid means a 200 response carried an undersized or non-JPEG body.
	OutcomeInvalid
	// OutcomeBadStatus means the daemon answered with a non-200 status.
	OutcomeBadStatus
	// OutcomeRotated means a connection-level failure advanced the port.
	OutcomeRotated
	// OutcomeCanceled means the context ended during the request.
	OutcomeCanceled
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeFrame:     "frame",
	OutcomeReview:    "review",
	OutcomeRefused:   "refused",
	OutcomeInvalid:   "invalid",
	OutcomeBadStatus: "bad_status",
	OutcomeRotated:   "rotated",
	OutcomeCanceled:  "canceled",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return "unknown"
}

// Outcome is the result of one Step.
type Outcome struct {
	Kind OutcomeKind
	// Port is the port that was contacted (the old port for OutcomeRotated).
	Port int
	// Delay is how long to wait before the next iteration.
	Delay time.Duration
	// Err is set for OutcomeRotated, OutcomeBadStatus and OutcomeInvalid.
	Err error
}

// errInvalidFrame marks a body that is not a usable JPEG.
var errInvalidFrame = errors.New("invalid frame")

// jpegSOI is the JPEG start-of-image marker.
var jpegSOI = []byte{0xFF, 0xD8}

// Poller keeps the frame buffer filled from the camera daemon.
type Poller struct {
	cfg     Config
	client  *http.Client
	buf     *framebuf.Buffer
	logger  *log.Logger
	metrics *metrics.Collector
	offline *log.Throttle

	mu         sync.Mutex
	ring       PortRing
	connected  bool
	lastFrame  time.Time
	lastFailed error
}

// NewPoller creates a poller. It does not contact the camera until Run or Step.
func NewPoller(cfg Config, buf *framebuf.Buffer, logger *log.Logger, collector *metrics.Collector) (*Poller, error) {
	if buf == nil {
		return nil, errors.New("camera: frame buffer is required")
	}
	cfg.applyDefaults()
	ring, err := NewPortRing(cfg.Ports)
	if err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Poller{
		cfg:     cfg,
		client:  client,
		buf:     buf,
		logger:  logger,
		metrics: collector,
		offline: log.NewThrottle(30 * time.Second),
		ring:    ring,
	}, nil
}

// Port returns the current candidate port.
func (p *Poller) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ring.Current()
}

// Status is a point-in-time view of the poller.
type Status struct {
	Port        int       `json:"port"`
	Candidates  []int     `json:"candidates"`
	Connected   bool      `json:"connected"`
	LastFrameAt time.Time `json:"last_frame_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status reports the current port and connection state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Port:        p.ring.Current(),
		Candidates:  p.ring.Ports(),
		Connected:   p.connected,
		LastFrameAt: p.lastFrame,
	}
	if p.lastFailed != nil {
		st.LastError = p.lastFailed.Error()
	}
	return st
}

// Run polls until ctx is canceled. It never returns an error other than
// ctx.Err(): every failure is retried.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("camera poller started", map[string]any{
		"host":  p.cfg.Host,
		"ports": p.ring.Ports(),
	})
	for {
		out := p.Step(ctx)
		if out.Kind == OutcomeCanceled {
			return ctx.Err()
		}
		timer := time.NewTimer(out.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Step performs one poll iteration and reports what happened and how long
// to wait before the next one.
func (p *Poller) Step(ctx context.Context) Outcome {
	if p.buf.ReviewActive() {
		return Outcome{Kind: OutcomeReview, Port: p.Port(), Delay: p.cfg.ReviewDelay}
	}

	port := p.Port()
	data, err := p.fetch(ctx, port)
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeCanceled, Port: port}
	}

	var statusErr *StatusError
	switch {
	case err == nil:
		if !p.buf.Store(data) {
			p.metrics.IncFrameRefused()
			return Outcome{Kind: OutcomeRefused, Port: port, Delay: p.cfg.ReviewDelay}
		}
		p.metrics.IncFrameStored()
		p.markConnected(port)
		return Outcome{Kind: OutcomeFrame, Port: port, Delay: p.cfg.FrameDelay}

	case errors.Is(err, errInvalidFrame):
		p.metrics.IncFrameUndersized()
		p.recordFailure(err)
		return Outcome{Kind: OutcomeInvalid, Port: port, Delay: p.cfg.RetryDelay, Err: err}

	case errors.As(err, &statusErr):
		p.metrics.IncFrameBadStatus()
		p.recordFailure(err)
		return Outcome{Kind: OutcomeBadStatus, Port: port, Delay: p.cfg.RetryDelay, Err: err}

	default:
		next := p.rotate(err)
		p.metrics.IncPortRotation()
		p.offline.Info(p.logger, "camera.rotate", "camera port rotated", map[string]any{
			"from":  port,
			"to":    next,
			"error": err.Error(),
		})
		return Outcome{Kind: OutcomeRotated, Port: port, Delay: p.cfg.RotateDelay, Err: err}
	}
}

// StatusError is returned for non-200 camera responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera returned status %d", e.Code)
}

// fetch performs a single GET. Errors other than *StatusError and
// errInvalidFrame are connection-level.
func (p *Poller) fetch(ctx context.Context, port int) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	url := "http://" + p.cfg.Host + ":" + strconv.Itoa(port) + p.cfg.Path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		iox.DrainClose(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}
	defer iox.DiscardClose(resp.Body)

	data, err := iox.ReadAtMost(resp.Body, p.cfg.MaxFrameBytes)
	if errors.Is(err, iox.ErrTooLarge) {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", errInvalidFrame, p.cfg.MaxFrameBytes)
	}
	if err != nil {
		// Reset or timeout mid-body: connection-level.
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) < p.cfg.MinFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes, want >= %d", errInvalidFrame, len(data), p.cfg.MinFrameBytes)
	}
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, fmt.Errorf("%w: missing JPEG start marker", errInvalidFrame)
	}
	return data, nil
}

// rotate advances the port ring and returns the new current port.
func (p *Poller) rotate(cause error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring = p.ring.OnFailure()
	p.connected = false
	p.lastFailed = cause
	return p.ring.Current()
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.lastFailed = err
	p.mu.Unlock()
}

// markConnected records a stored frame and logs once per failure streak.
func (p *Poller) markConnected(port int) {
	p.mu.Lock()
	wasConnected := p.connected
	p.connected = true
	p.lastFrame = p.buf.Now()
	p.lastFailed = nil
	p.mu.Unlock()

	if !wasConnected {
		p.offline.Reset("camera.rotate")
		p.logger.Info("camera connected", map[string]any{"port": port})
	}
}
