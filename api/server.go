// Package api serves the local bridge HTTP surface.
//
// The kiosk browser UI and other local consumers read the live view from it
// (single JPEG, MJPEG stream, websocket, msgpack frame tap), toggle the
// snapshot fanout, inject review images, trigger a sync cycle and fetch
// capture files for local email links. Every stream reads the shared frame
// buffer; none of them contacts the camera.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/eventctx"
	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/syncer"
	"github.com/pithecene-io/boothbridge/types"
)

// Defaults.
const (
	DefaultListen          = "127.0.0.1:5600"
	DefaultMaxReviewBytes  = 16 << 20
	DefaultShutdownTimeout = 5 * time.Second
	// streamWriteTimeout bounds one frame write to a slow stream client.
	streamWriteTimeout = 5 * time.Second
)

// CameraStatus reports the camera poller state.
type CameraStatus interface {
	Status() camera.Status
}

// Fanout is the snapshot fanout toggle.
type Fanout interface {
	SetEnabled(on bool)
	Enabled() bool
}

// Syncer runs synchronization cycles on demand.
type Syncer interface {
	RunCycle(ctx context.Context) (types.SyncResult, error)
	Status() syncer.Status
}

// Journal lists recently confirmed uploads.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]types.ArtifactSynced, error)
}

// Config configures the server.
type Config struct {
	// Listen is the TCP address (default 127.0.0.1:5600).
	Listen string
	// MaxReviewBytes bounds POST /review bodies (default 16 MiB).
	MaxReviewBytes int64
	// ShutdownTimeout bounds graceful shutdown (default 5s).
	ShutdownTimeout time.Duration
}

// Deps are the shared bridge objects the handlers read and mutate.
// Frames and Events are required; the rest may be nil when the
// corresponding loop is disabled.
type Deps struct {
	Meta    types.BridgeMeta
	Frames  *framebuf.Buffer
	Events  *eventctx.Context
	Camera  CameraStatus
	Fanout  Fanout
	Syncer  Syncer
	Journal Journal
	Metrics *metrics.Collector
}

// Server is the local bridge API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *log.Logger
	router *mux.Router

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a server. It does not listen until Run or Serve is called.
func New(cfg Config, deps Deps, logger *log.Logger) (*Server, error) {
	if deps.Frames == nil {
		return nil, errors.New("api: frame buffer is required")
	}
	if deps.Events == nil {
		return nil, errors.New("api: event context is required")
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.MaxReviewBytes <= 0 {
		cfg.MaxReviewBytes = DefaultMaxReviewBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/liveview.jpg", s.handleLiveView).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/stream.mjpg", s.handleMJPEG).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/frames", s.handleFrameTap).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/fanout", s.handleFanout).Methods(http.MethodPost)
	r.HandleFunc("/review", s.handleReview).Methods(http.MethodPost)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/uploads", s.handleUploads).Methods(http.MethodGet)
	r.HandleFunc("/files/{path:.+}", s.handleFile).Methods(http.MethodGet, http.MethodHead)
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Listen
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
// Open streams are released before the shutdown waits for idle
// connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("local api listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		s.closeStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("local api shutdown incomplete", map[string]any{"error": err.Error()})
		_ = srv.Close()
	}
	<-errCh
	s.logger.Info("local api stopped", nil)
	return ctx.Err()
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}
