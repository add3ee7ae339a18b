// Package relay pulls one-shot commands from the cloud and applies them
// on the booth.
//
// Each tick polls the command source once and applies at most one command.
// The source marks a command processed when it is read, so a command is
// applied at most once; a failure while applying is logged and not retried.
// Only one bridge may consume a given queue.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pithecene-io/boothbridge/collab"
	"github.com/pithecene-io/boothbridge/eventctx"
	"github.com/pithecene-io/boothbridge/fsx"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/types"
)

// DefaultInterval is the poll period.
const DefaultInterval = 2500 * time.Millisecond

// DefaultOptimizedDir is where optimized copies of captures live.
const DefaultOptimizedDir = "cloud"

// ErrFileNotFound is returned when a command names a file that does not
// exist on this machine.
var ErrFileNotFound = errors.New("file not found locally")

// ErrNoService is returned when a command needs a collaborator that is not configured.
var ErrNoService = errors.New("service not configured")

// Source yields at most one pending command per call, or nil when idle.
// Implemented by *remote.Client and *redisqueue.Queue.
type Source interface {
	NextCommand(ctx context.Context) (*types.Command, error)
}

// Mailer forwards a photo to the email service.
type Mailer interface {
	Send(ctx context.Context, email, photoURL string, isTest bool) error
}

// Printer forwards a photo to the print service.
type Printer interface {
	Print(ctx context.Context, req collab.PrintRequest) error
}

// Config configures the relay.
type Config struct {
	// Interval between polls (default 2.5s).
	Interval time.Duration
	// LocalBaseURL is the bridge API root used to build links to local
	// files, e.g. http://127.0.0.1:5513. Empty disables local links.
	LocalBaseURL string
	// OptimizedDir is searched after the event directory (default "cloud").
	OptimizedDir string
}

// Outcome classifies one tick.
type Outcome int

const (
	// Idle means the queue was empty.
	Idle Outcome = iota
	// Applied means a command took effect.
	Applied
	// Ignored means the command type is unknown.
	Ignored
	// Failed means a command was read but could not be applied.
	Failed
	// PollError means the source could not be read.
	PollError
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	case PollError:
		return "poll_error"
	default:
		return "unknown"
	}
}

// Option configures optional collaborators.
type Option func(*Relay)

// WithMailer enables SEND_EMAIL.
func WithMailer(m Mailer) Option { return func(r *Relay) { r.mailer = m } }

// WithPrinter enables PRINT.
func WithPrinter(p Printer) Option { return func(r *Relay) { r.printer = p } }

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option { return func(r *Relay) { r.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(r *Relay) { r.metrics = c } }

// Relay polls a command source and applies commands.
type Relay struct {
	cfg     Config
	source  Source
	events  *eventctx.Context
	mailer  Mailer
	printer Printer
	logger  *log.Logger
	metrics *metrics.Collector
	pollLog *log.Throttle
}

// New creates a relay.
func New(cfg Config, source Source, events *eventctx.Context, opts ...Option) (*Relay, error) {
	if source == nil || events == nil {
		return nil, errors.New("relay: source and event context are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OptimizedDir == "" {
		cfg.OptimizedDir = DefaultOptimizedDir
	}
	cfg.LocalBaseURL = strings.TrimRight(cfg.LocalBaseURL, "/")

	r := &Relay{
		cfg:     cfg,
		source:  source,
		events:  events,
		pollLog: log.NewThrottle(time.Minute),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls every interval until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick polls once and applies the command, if any, before returning.
func (r *Relay) Tick(ctx context.Context) Outcome {
	r.metrics.IncCommandPoll()

	cmd, err := r.source.NextCommand(ctx)
	if err != nil {
		r.metrics.IncCommandPollError()
		if ctx.Err() != nil {
			return PollError
		}
		fields := map[string]any{"error": err.Error()}
		if remote.IsOffline(err) {
			r.logger.Debug("command poll failed, remote offline", fields)
		} else {
			r.pollLog.Warn(r.logger, "poll", "command poll failed", fields)
		}
		return PollError
	}
	r.pollLog.Reset("poll")

	if cmd == nil {
		return Idle
	}
	return r.Apply(ctx, cmd)
}

// Apply executes one command.
func (r *Relay) Apply(ctx context.Context, cmd *types.Command) Outcome {
	fields := map[string]any{"command": string(cmd.Type), "id": cmd.ID}

	var err error
	switch cmd.Type {
	case types.CommandSetEvent:
		err = r.setEvent(cmd)
	case types.CommandSendEmail:
		err = r.sendEmail(ctx, cmd)
	case types.CommandPrint:
		err = r.print(ctx, cmd)
	default:
		r.metrics.IncCommandIgnored()
		r.logger.Info("unknown command ignored", fields)
		return Ignored
	}

	if err != nil {
		r.metrics.IncCommandFailed()
		fields["error"] = err.Error()
		r.logger.Warn("command failed", fields)
		return Failed
	}
	r.metrics.IncCommandApplied()
	r.logger.Info("command applied", fields)
	return Applied
}

func (r *Relay) setEvent(cmd *types.Command) error {
	var p types.SetEventParams
	if err := cmd.DecodeParams(&p); err != nil {
		return err
	}
	if strings.EqualFold(p.Slug, r.cfg.OptimizedDir) {
		return fmt.Errorf("%w: slug %q names the optimized directory", types.ErrInvalidParams, p.Slug)
	}
	return r.events.Apply(p)
}

func (r *Relay) sendEmail(ctx context.Context, cmd *types.Command) error {
	var p types.SendEmailParams
	if err := cmd.DecodeParams(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if r.mailer == nil {
		return fmt.Errorf("email: %w", ErrNoService)
	}

	photoURL := p.PhotoURL
	if p.Filename != "" {
		if _, rel, err := r.ResolveLocal(p.Filename); err == nil && r.cfg.LocalBaseURL != "" {
			photoURL = r.FileURL(rel)
		}
	}
	if photoURL == "" {
		return fmt.Errorf("email: %s: %w", p.Filename, ErrFileNotFound)
	}
	return r.mailer.Send(ctx, p.Email, photoURL, p.IsTest)
}

func (r *Relay) print(ctx context.Context, cmd *types.Command) error {
	var p types.PrintParams
	if err := cmd.DecodeParams(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if r.printer == nil {
		return fmt.Errorf("print: %w", ErrNoService)
	}

	abs, rel, err := r.ResolveLocal(p.Filename)
	if err != nil {
		return fmt.Errorf("print: %w", err)
	}
	req := collab.PrintRequest{Filename: filepath.Base(abs), Path: abs, Copies: p.Copies}
	if r.cfg.LocalBaseURL != "" {
		req.URL = r.FileURL(rel)
	}
	return r.printer.Print(ctx, req)
}

// ResolveLocal finds a capture by base name. It searches the active event
// directory, its optimized directory, then the capture root and its
// optimized directory. Returns the absolute path and the slash-separated
// path relative to the capture root.
func (r *Relay) ResolveLocal(filename string) (abs, rel string, err error) {
	name := filepath.Base(filepath.Clean(filename))
	if name != filename || fsx.IsHidden(name) {
		return "", "", fmt.Errorf("%w: %q is not a plain file name", ErrFileNotFound, filename)
	}

	root := r.events.Root()
	dirs := []string{r.events.SaveDirectory()}
	dirs = append(dirs, filepath.Join(dirs[0], r.cfg.OptimizedDir))
	if dirs[0] != root {
		dirs = append(dirs, root, filepath.Join(root, r.cfg.OptimizedDir))
	}

	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		fi, err := os.Stat(candidate)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		relPath, err := filepath.Rel(root, candidate)
		if err != nil {
			continue
		}
		return candidate, filepath.ToSlash(relPath), nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrFileNotFound, filename)
}

// FileURL returns the local API link for a capture-root relative path.
func (r *Relay) FileURL(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.cfg.LocalBaseURL + path.Join("/files", strings.Join(segments, "/"))
}
