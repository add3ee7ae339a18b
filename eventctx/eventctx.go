// Package eventctx holds the active event shared by the relay, the
// synchronizer, and the local API.
//
// The active event selects the save directory: captures go to
// <root>/<slug> while an event is active and to <root> otherwise. The
// selection survives restarts through a small JSON marker file.
package eventctx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pithecene-io/boothbridge/fsx"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/types"
)

// ErrReservedSlug reports a slug that names a directory the bridge owns.
var ErrReservedSlug = fmt.Errorf("%w: slug is reserved", types.ErrInvalidParams)

// Option configures a Context.
type Option func(*Context)

// WithReserved rejects slugs equal (case-insensitively) to any of names,
// such as the optimized-output directory under the capture root.
func WithReserved(names ...string) Option {
	return func(c *Context) {
		for _, n := range names {
			if n != "" {
				c.reserved = append(c.reserved, n)
			}
		}
	}
}

// Context is the session state mutated by SET_EVENT.
// Reads take a snapshot under a read lock and may be briefly stale.
type Context struct {
	root     string
	marker   string
	reserved []string
	logger   *log.Logger

	mu     sync.RWMutex
	active types.ActiveEvent
}

// Load restores the active event from the marker file.
// A missing marker means no active event. An unreadable marker is logged
// and ignored.
func Load(root, markerPath string, logger *log.Logger, opts ...Option) (*Context, error) {
	if root == "" {
		return nil, errors.New("eventctx: capture root is required")
	}
	c := &Context{root: root, marker: markerPath, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if markerPath == "" {
		return c, nil
	}

	var ev types.ActiveEvent
	err := fsx.ReadJSON(markerPath, &ev)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return c, nil
	default:
		logger.Warn("active event marker unreadable, starting without event", map[string]any{
			"path":  markerPath,
			"error": err.Error(),
		})
		return c, nil
	}

	if ev.IsZero() {
		return c, nil
	}
	if err := c.validate(types.SetEventParams{Slug: ev.Slug, Name: ev.Name}); err != nil {
		logger.Warn("active event marker rejected", map[string]any{"slug": ev.Slug, "error": err.Error()})
		return c, nil
	}
	if err := os.MkdirAll(filepath.Join(root, ev.Slug), 0o755); err != nil {
		return nil, fmt.Errorf("eventctx: create event directory: %w", err)
	}
	c.active = ev
	logger.Info("active event restored", map[string]any{"slug": ev.Slug, "name": ev.Name})
	return c, nil
}

// Root returns the capture root.
func (c *Context) Root() string { return c.root }

// Apply switches the active event. The event directory is created and the
// marker written before the new event becomes visible to readers. A marker
// write failure is logged; the in-memory switch still happens.
func (c *Context) Apply(p types.SetEventParams) error {
	if err := c.validate(p); err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = p.Slug
	}

	dir := filepath.Join(c.root, p.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("eventctx: create event directory: %w", err)
	}

	ev := types.ActiveEvent{Slug: p.Slug, Name: p.Name}
	if c.marker != "" {
		if err := fsx.WriteJSONAtomic(c.marker, ev); err != nil {
			c.logger.Warn("active event marker not persisted", map[string]any{
				"path":  c.marker,
				"error": err.Error(),
			})
		}
	}

	c.mu.Lock()
	prev := c.active
	c.active = ev
	c.mu.Unlock()

	c.logger.Info("active event switched", map[string]any{
		"slug":     ev.Slug,
		"name":     ev.Name,
		"previous": prev.Slug,
		"dir":      dir,
	})
	return nil
}

func (c *Context) validate(p types.SetEventParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, name := range c.reserved {
		if strings.EqualFold(p.Slug, name) {
			return fmt.Errorf("%w: %q", ErrReservedSlug, p.Slug)
		}
	}
	return nil
}

// Active returns the active event (zero when none).
func (c *Context) Active() types.ActiveEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Slug returns the active event slug, or "".
func (c *Context) Slug() string {
	return c.Active().Slug
}

// SaveDirectory returns where new captures belong.
func (c *Context) SaveDirectory() string {
	if slug := c.Slug(); slug != "" {
		return filepath.Join(c.root, slug)
	}
	return c.root
}
