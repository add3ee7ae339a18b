package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/bridge"
	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/collab"
	"github.com/pithecene-io/boothbridge/fanout"
	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/notify/redis"
	"github.com/pithecene-io/boothbridge/notify/webhook"
	"github.com/pithecene-io/boothbridge/relay/redisqueue"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/s3store"
)

// Config represents a boothbridge.yaml configuration file.
// Omitted values fall back to the bridge defaults. CLI flags override
// config values.
type Config struct {
	CaptureRoot string `yaml:"capture_root"`
	SyncState   string `yaml:"sync_state"`
	EventMarker string `yaml:"event_marker"`
	LogLevel    string `yaml:"log_level"`

	Camera   CameraConfig   `yaml:"camera"`
	Frames   FramesConfig   `yaml:"frames"`
	Remote   RemoteConfig   `yaml:"remote"`
	Fanout   FanoutConfig   `yaml:"fanout"`
	Sync     SyncConfig     `yaml:"sync"`
	Journal  StorageConfig  `yaml:"journal"`
	Notify   AdapterConfig  `yaml:"notify"`
	Commands CommandsConfig `yaml:"commands"`
	Email    ServiceConfig  `yaml:"email"`
	Print    ServiceConfig  `yaml:"print"`
	API      APIConfig      `yaml:"api"`
}

// CameraConfig holds the camera daemon location.
type CameraConfig struct {
	Host          string   `yaml:"host"`
	Ports         []int    `yaml:"ports"`
	Path          string   `yaml:"path"`
	Timeout       Duration `yaml:"timeout"`
	MinFrameBytes int      `yaml:"min_frame_bytes"`
}

// FramesConfig holds frame buffer timing.
type FramesConfig struct {
	StaleAfter  Duration `yaml:"stale_after"`
	ReviewDwell Duration `yaml:"review_dwell"`
}

// RemoteConfig holds the cloud backend location.
type RemoteConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout"`
}

// FanoutConfig holds snapshot fanout settings. The loop runs whenever a
// remote is configured; Enabled is the initial toggle state.
type FanoutConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Interval    Duration `yaml:"interval"`
	MaxInFlight int      `yaml:"max_in_flight"`
	Timeout     Duration `yaml:"timeout"`
}

// SyncConfig holds artifact synchronizer settings.
type SyncConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	Backend      string        `yaml:"backend"`
	Interval     Duration      `yaml:"interval"`
	WarmUp       Duration      `yaml:"warm_up"`
	OptimizedDir string        `yaml:"optimized_dir"`
	Category     string        `yaml:"category"`
	MaxDimension int           `yaml:"max_dimension"`
	Quality      int           `yaml:"quality"`
	S3           StorageConfig `yaml:"s3"`
}

// StorageConfig holds S3 or filesystem storage settings.
// Path is a directory (fs) or bucket/prefix (s3).
type StorageConfig struct {
	Dataset         string `yaml:"dataset,omitempty"`
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	PublicBaseURL   string `yaml:"public_base_url,omitempty"`
}

// AdapterConfig holds the artifact_synced notification adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// CommandsConfig holds command relay settings.
type CommandsConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty"`
	Source   string   `yaml:"source"`
	Interval Duration `yaml:"interval"`
	URL      string   `yaml:"url,omitempty"`
	Key      string   `yaml:"key,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// ServiceConfig locates a local collaborator (email or print service).
type ServiceConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// APIConfig holds local API settings.
type APIConfig struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Listen    string `yaml:"listen"`
	PublicURL string `yaml:"public_url,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "200ms", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// Bridge converts the file into a bridge configuration. Omitted sections
// keep bridge defaults; an absent remote URL turns the snapshot fanout off.
func (c *Config) Bridge() (bridge.Config, error) {
	out := bridge.Config{
		CaptureRoot:     c.CaptureRoot,
		SyncStatePath:   c.SyncState,
		EventMarkerPath: c.EventMarker,
		Camera: camera.Config{
			Host:          c.Camera.Host,
			Ports:         c.Camera.Ports,
			Path:          c.Camera.Path,
			Timeout:       c.Camera.Timeout.Duration,
			MinFrameBytes: c.Camera.MinFrameBytes,
		},
		Frames: framebuf.Config{
			StaleAfter:  c.Frames.StaleAfter.Duration,
			ReviewDwell: c.Frames.ReviewDwell.Duration,
		},
		Remote: remote.Config{
			BaseURL: c.Remote.URL,
			Headers: c.Remote.Headers,
			Timeout: c.Remote.Timeout.Duration,
		},
		Fanout: bridge.FanoutConfig{
			Disabled: c.Remote.URL == "",
			Config: fanout.Config{
				Enabled:     c.Fanout.Enabled,
				Interval:    c.Fanout.Interval.Duration,
				MaxInFlight: c.Fanout.MaxInFlight,
				Timeout:     c.Fanout.Timeout.Duration,
			},
		},
		Sync: bridge.SyncConfig{
			Disabled:     !enabled(c.Sync.Enabled),
			Backend:      c.Sync.Backend,
			S3:           c.Sync.S3.s3Config(),
			Interval:     c.Sync.Interval.Duration,
			WarmUp:       c.Sync.WarmUp.Duration,
			OptimizedDir: c.Sync.OptimizedDir,
			Category:     c.Sync.Category,
			MaxDimension: c.Sync.MaxDimension,
			Quality:      c.Sync.Quality,
		},
		Journal: bridge.JournalConfig{
			Backend: c.Journal.Backend,
			Dataset: c.Journal.Dataset,
			Path:    c.Journal.Path,
			S3:      c.Journal.s3Config(),
		},
		Commands: bridge.CommandsConfig{
			Disabled: !enabled(c.Commands.Enabled),
			Source:   c.Commands.Source,
			Interval: c.Commands.Interval.Duration,
			Redis: redisqueue.Config{
				URL:     c.Commands.URL,
				Key:     c.Commands.Key,
				Timeout: c.Commands.Timeout.Duration,
			},
		},
		Email: collab.Config{URL: c.Email.URL, Headers: c.Email.Headers, Timeout: c.Email.Timeout.Duration},
		Print: collab.Config{URL: c.Print.URL, Headers: c.Print.Headers, Timeout: c.Print.Timeout.Duration},
		API: bridge.APIConfig{
			Disabled:  !enabled(c.API.Enabled),
			Config:    api.Config{Listen: c.API.Listen},
			PublicURL: c.API.PublicURL,
		},
	}

	var retries int
	if c.Notify.Retries != nil {
		retries = *c.Notify.Retries
	}
	switch c.Notify.Type {
	case "":
	case "webhook":
		out.Notify.Webhook = webhook.Config{
			URL:     c.Notify.URL,
			Headers: c.Notify.Headers,
			Timeout: c.Notify.Timeout.Duration,
			Retries: retries,
		}
		if c.Notify.Retries == nil {
			out.Notify.Webhook.Retries = webhook.DefaultRetries
		}
	case "redis":
		out.Notify.Redis = redis.Config{
			URL:     c.Notify.URL,
			Channel: c.Notify.Channel,
			Timeout: c.Notify.Timeout.Duration,
			Retries: retries,
		}
		if c.Notify.Retries == nil {
			out.Notify.Redis.Retries = redis.DefaultRetries
		}
	default:
		return bridge.Config{}, fmt.Errorf("notify: unknown type %q (must be webhook or redis)", c.Notify.Type)
	}
	if c.Notify.Type != "" && c.Notify.URL == "" {
		return bridge.Config{}, fmt.Errorf("notify: %s adapter requires a url", c.Notify.Type)
	}
	return out, nil
}

func (s StorageConfig) s3Config() s3store.Config {
	bucket, prefix := s3store.ParsePath(s.Path)
	return s3store.Config{
		Bucket:          bucket,
		Prefix:          prefix,
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		UsePathStyle:    s.S3PathStyle,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		PublicBaseURL:   s.PublicBaseURL,
	}
}

// Validate checks the file as a whole: log level, adapter settings and
// the resulting bridge configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}
	bc, err := c.Bridge()
	if err != nil {
		errs = append(errs, err)
	} else {
		bc.ApplyDefaults()
		if err := bc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
