package bridge

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/collab"
	"github.com/pithecene-io/boothbridge/fanout"
	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/notify/redis"
	"github.com/pithecene-io/boothbridge/notify/webhook"
	"github.com/pithecene-io/boothbridge/relay/redisqueue"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/s3store"
)

// Upload backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// Journal backends.
const (
	JournalNone   = ""
	JournalMemory = "memory"
	JournalFS     = "fs"
	JournalS3     = "s3"
)

// Command sources.
const (
	SourceRemote = "remote"
	SourceRedis  = "redis"
)

// Default file names under the capture root.
const (
	DefaultSyncStateFile   = ".boothbridge-sync.json"
	DefaultEventMarkerFile = ".boothbridge-event.json"
)

// DefaultSyncWarmUp delays the first scheduled cycle after start.
const DefaultSyncWarmUp = 5 * time.Second

// Config is the complete bridge configuration. Zero values select
// defaults; an empty URL disables the collaborator it configures.
type Config struct {
	// CaptureRoot is the local capture directory (required).
	CaptureRoot string
	// SyncStatePath is the persisted sync map (default <root>/.boothbridge-sync.json).
	SyncStatePath string
	// EventMarkerPath is the active-event marker (default <root>/.boothbridge-event.json).
	EventMarkerPath string

	Camera camera.Config
	Frames framebuf.Config
	// Remote is the cloud backend. Required by the snapshot fanout, the
	// http upload backend and the remote command source.
	Remote remote.Config
	Fanout FanoutConfig
	Sync   SyncConfig

	Journal  JournalConfig
	Notify   NotifyConfig
	Commands CommandsConfig
	Email    collab.Config
	Print    collab.Config
	API      APIConfig
}

// FanoutConfig configures the snapshot fanout loop.
type FanoutConfig struct {
	Disabled bool
	fanout.Config
}

// SyncConfig configures the artifact synchronizer.
type SyncConfig struct {
	Disabled bool
	// Backend is "http" (default) or "s3".
	Backend      string
	S3           s3store.Config
	Interval     time.Duration
	WarmUp       time.Duration
	OptimizedDir string
	Category     string
	MaxDimension int
	Quality      int
}

// JournalConfig configures the Lode sync journal.
type JournalConfig struct {
	// Backend is "", "memory", "fs" or "s3". Empty disables the journal.
	Backend string
	Dataset string
	// Path is the fs root, or bucket/prefix for s3.
	Path string
	// S3 carries region, endpoint and credentials for the s3 backend.
	S3 s3store.Config
}

// NotifyConfig configures artifact_synced notifications.
type NotifyConfig struct {
	Webhook webhook.Config
	Redis   redis.Config
}

// CommandsConfig configures the command relay.
type CommandsConfig struct {
	Disabled bool
	// Source is "remote" (default) or "redis".
	Source   string
	Redis    redisqueue.Config
	Interval time.Duration
}

// APIConfig configures the local bridge API.
type APIConfig struct {
	Disabled bool
	api.Config
	// PublicURL is the base URL used in local email links
	// (default http://<listen>).
	PublicURL string
}

// ApplyDefaults fills derived defaults in place.
func (c *Config) ApplyDefaults() {
	if c.SyncStatePath == "" && c.CaptureRoot != "" {
		c.SyncStatePath = filepath.Join(c.CaptureRoot, DefaultSyncStateFile)
	}
	if c.EventMarkerPath == "" && c.CaptureRoot != "" {
		c.EventMarkerPath = filepath.Join(c.CaptureRoot, DefaultEventMarkerFile)
	}
	if c.Sync.Backend == "" {
		c.Sync.Backend = BackendHTTP
	}
	if c.Sync.WarmUp == 0 {
		c.Sync.WarmUp = DefaultSyncWarmUp
	}
	if c.Commands.Source == "" {
		c.Commands.Source = SourceRemote
	}
	if c.API.Listen == "" {
		c.API.Listen = api.DefaultListen
	}
	if c.API.PublicURL == "" && !c.API.Disabled {
		c.API.PublicURL = "http://" + c.API.Listen
	}
}

// Validate reports configuration errors. Call after ApplyDefaults.
func (c *Config) Validate() error {
	var errs []error
	if c.CaptureRoot == "" {
		errs = append(errs, errors.New("capture root is required"))
	}
	if len(c.Camera.Ports) == 0 {
		errs = append(errs, errors.New("camera: at least one candidate port is required"))
	}
	hasRemote := c.Remote.BaseURL != ""

	if !c.Fanout.Disabled && !hasRemote {
		errs = append(errs, errors.New("fanout: remote base URL is required"))
	}

	if !c.Sync.Disabled {
		switch c.Sync.Backend {
		case BackendHTTP:
			if !hasRemote {
				errs = append(errs, errors.New("sync: http backend requires a remote base URL"))
			}
		case BackendS3:
			if err := c.Sync.S3.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("sync: %w", err))
			}
		default:
			errs = append(errs, fmt.Errorf("sync: unknown backend %q (must be http or s3)", c.Sync.Backend))
		}
	}

	switch c.Journal.Backend {
	case JournalNone, JournalMemory:
	case JournalFS:
		if c.Journal.Path == "" {
			errs = append(errs, errors.New("journal: fs backend requires a path"))
		}
	case JournalS3:
		if bucket, _ := s3store.ParsePath(c.Journal.Path); bucket == "" {
			errs = append(errs, errors.New("journal: s3 backend requires bucket[/prefix] path"))
		}
	default:
		errs = append(errs, fmt.Errorf("journal: unknown backend %q (must be memory, fs or s3)", c.Journal.Backend))
	}

	if !c.Commands.Disabled {
		switch c.Commands.Source {
		case SourceRemote:
			if !hasRemote {
				errs = append(errs, errors.New("commands: remote source requires a remote base URL"))
			}
		case SourceRedis:
			if c.Commands.Redis.URL == "" {
				errs = append(errs, errors.New("commands: redis source requires a URL"))
			}
		default:
			errs = append(errs, fmt.Errorf("commands: unknown source %q (must be remote or redis)", c.Commands.Source))
		}
	}
	return errors.Join(errs...)
}
