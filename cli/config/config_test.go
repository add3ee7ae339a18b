package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `capture_root: /srv/booth
log_level: debug

camera:
  host: 10.0.0.5
  ports: [5513, 5514, 5515]
  timeout: 2s
  min_frame_bytes: 2000

frames:
  stale_after: 2s
  review_dwell: 3s

remote:
  url: https://booth.example.com/api
  headers:
    Authorization: Bearer token123
  timeout: 10s

fanout:
  enabled: true
  interval: 200ms
  max_in_flight: 2

sync:
  backend: s3
  interval: 30s
  warm_up: 5s
  max_dimension: 1600
  quality: 80
  s3:
    path: booth-bucket/uploads
    region: eu-central-1
    endpoint: https://r2.example.com
    s3_path_style: true
    public_base_url: https://cdn.example.com

journal:
  backend: fs
  path: /var/lib/boothbridge/journal
  dataset: booth

notify:
  type: webhook
  url: https://hooks.example.com/booth
  headers:
    X-Token: abc
  timeout: 10s
  retries: 3

commands:
  source: redis
  url: redis://localhost:6379/0
  key: booth:commands
  interval: 2500ms

email:
  url: http://127.0.0.1:5520/send

print:
  url: http://127.0.0.1:5530/print
  timeout: 30s

api:
  listen: 0.0.0.0:5600
  public_url: http://booth.local:5600
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "capture_root", cfg.CaptureRoot, "/srv/booth")
	assertEqual(t, "log_level", cfg.LogLevel, "debug")

	// Camera
	assertEqual(t, "camera.host", cfg.Camera.Host, "10.0.0.5")
	if len(cfg.Camera.Ports) != 3 || cfg.Camera.Ports[1] != 5514 {
		t.Errorf("camera.ports = %v", cfg.Camera.Ports)
	}
	if cfg.Frames.ReviewDwell.Duration != 3*time.Second {
		t.Errorf("frames.review_dwell = %v", cfg.Frames.ReviewDwell.Duration)
	}

	// Remote and fanout
	assertEqual(t, "remote.url", cfg.Remote.URL, "https://booth.example.com/api")
	if cfg.Remote.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
	if cfg.Fanout.Interval.Duration != 200*time.Millisecond {
		t.Errorf("fanout.interval = %v", cfg.Fanout.Interval.Duration)
	}

	// Sync
	assertEqual(t, "sync.backend", cfg.Sync.Backend, "s3")
	assertEqual(t, "sync.s3.path", cfg.Sync.S3.Path, "booth-bucket/uploads")
	if !cfg.Sync.S3.S3PathStyle {
		t.Error("expected sync.s3.s3_path_style=true")
	}
	if cfg.Sync.Enabled != nil {
		t.Error("expected sync.enabled to be omitted")
	}

	// Notify
	assertEqual(t, "notify.type", cfg.Notify.Type, "webhook")
	if cfg.Notify.Retries == nil || *cfg.Notify.Retries != 3 {
		t.Errorf("expected notify.retries=3")
	}

	// Commands
	assertEqual(t, "commands.source", cfg.Commands.Source, "redis")
	if cfg.Commands.Interval.Duration != 2500*time.Millisecond {
		t.Errorf("commands.interval = %v", cfg.Commands.Interval.Duration)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfig_Bridge(t *testing.T) {
	retries := 0
	cfg := &Config{
		CaptureRoot: "/srv/booth",
		Camera:      CameraConfig{Ports: []int{5514}},
		Remote:      RemoteConfig{URL: "https://booth.example.com"},
		Fanout:      FanoutConfig{Enabled: true},
		Sync: SyncConfig{
			Backend: "s3",
			S3:      StorageConfig{Path: "bucket/prefix/deep", Region: "us-east-1"},
		},
		Journal:  StorageConfig{Backend: "s3", Path: "journal-bucket/j"},
		Notify:   AdapterConfig{Type: "redis", URL: "redis://localhost:6379", Retries: &retries},
		Commands: CommandsConfig{Source: "redis", URL: "redis://localhost:6379", Key: "q"},
	}

	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if bc.Fanout.Disabled || !bc.Fanout.Enabled {
		t.Errorf("fanout = %+v, want running and enabled", bc.Fanout)
	}
	if bc.Sync.S3.Bucket != "bucket" || bc.Sync.S3.Prefix != "prefix/deep" {
		t.Errorf("sync s3 = %q %q", bc.Sync.S3.Bucket, bc.Sync.S3.Prefix)
	}
	if bc.Notify.Redis.URL == "" || bc.Notify.Webhook.URL != "" {
		t.Errorf("notify = %+v", bc.Notify)
	}
	if bc.Notify.Redis.Retries != 0 {
		t.Errorf("explicit retries: 0 not kept, got %d", bc.Notify.Redis.Retries)
	}
	if bc.Commands.Redis.Key != "q" {
		t.Errorf("commands.redis.key = %q", bc.Commands.Redis.Key)
	}
	if bc.Sync.Disabled || bc.Commands.Disabled || bc.API.Disabled {
		t.Error("omitted enabled flags must default to on")
	}
}

func TestConfig_Bridge_NoRemoteDisablesFanout(t *testing.T) {
	cfg := &Config{CaptureRoot: "/srv/booth", Camera: CameraConfig{Ports: []int{5514}}}
	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if !bc.Fanout.Disabled {
		t.Error("expected fanout disabled without remote url")
	}
}

func TestConfig_Bridge_WebhookDefaultRetries(t *testing.T) {
	cfg := &Config{Notify: AdapterConfig{Type: "webhook", URL: "https://hooks.example.com"}}
	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if bc.Notify.Webhook.Retries != 2 {
		t.Errorf("retries = %d, want default 2", bc.Notify.Webhook.Retries)
	}
}

func TestConfig_Validate(t *testing.T) {
	off := false
	valid := func() *Config {
		return &Config{
			CaptureRoot: "/srv/booth",
			Camera:      CameraConfig{Ports: []int{5513, 5514}},
			Remote:      RemoteConfig{URL: "https://booth.example.com"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "loud"},
		{"unknown notify type", func(c *Config) { c.Notify.Type = "smtp"; c.Notify.URL = "x" }, "unknown type"},
		{"notify without url", func(c *Config) { c.Notify.Type = "webhook" }, "requires a url"},
		{"no ports", func(c *Config) { c.Camera.Ports = nil }, "candidate port"},
		{"no remote but sync on", func(c *Config) { c.Remote.URL = "" }, "http backend"},
		{"no remote, remote users off", func(c *Config) {
			c.Remote.URL = ""
			c.Sync.Enabled = &off
			c.Commands.Enabled = &off
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CaptureRoot != "" {
		t.Errorf("expected empty capture_root, got %q", cfg.CaptureRoot)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/boothbridge.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "boothbridge.yaml")

	cfg, err := LoadOptional(missing, false)
	if err != nil || cfg == nil {
		t.Fatalf("implicit missing file: cfg=%v err=%v", cfg, err)
	}
	if _, err := LoadOptional(missing, true); err == nil {
		t.Fatal("expected error for explicit missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CAPTURE_ROOT", "/mnt/captures")

	yaml := `capture_root: ${TEST_CAPTURE_ROOT}
remote:
  url: ${TEST_REMOTE_URL_UNSET:-https://fallback.example.com}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "capture_root", cfg.CaptureRoot, "/mnt/captures")
	assertEqual(t, "remote.url", cfg.Remote.URL, "https://fallback.example.com")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `capture_root: /srv/booth
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `journal:
  backend: fs
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	path := writeTemp(t, "   \n  \n  \n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for whitespace-only config: %v", err)
	}
	if cfg.CaptureRoot != "" {
		t.Errorf("expected empty capture_root, got %q", cfg.CaptureRoot)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	// retries: 0 should parse as *int(0), not nil.
	yaml := `notify:
  type: webhook
  url: https://example.com
  retries: 0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notify.Retries == nil {
		t.Fatal("expected retries to be non-nil (*int(0)), got nil")
	}
	if *cfg.Notify.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Notify.Retries)
	}
}

func TestLoad_EnabledFlags(t *testing.T) {
	yaml := `sync:
  enabled: false
api:
  enabled: false
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if !bc.Sync.Disabled || !bc.API.Disabled {
		t.Errorf("sync disabled=%v api disabled=%v, want both true", bc.Sync.Disabled, bc.API.Disabled)
	}
	if bc.Commands.Disabled {
		t.Error("commands must stay enabled when omitted")
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	yaml := `fanout:
  interval: not-a-duration
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	yaml := `notify:
  type: webhook
  url: https://example.com
  timeout: ""
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notify.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Notify.Timeout.Duration)
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `notify:
  type: redis
  url: redis://localhost:6379/0
  channel: booth:artifact_synced
  timeout: 5s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "notify.type", cfg.Notify.Type, "redis")
	assertEqual(t, "notify.channel", cfg.Notify.Channel, "booth:artifact_synced")
	if cfg.Notify.Timeout.Duration != 5*time.Second {
		t.Errorf("expected notify.timeout=5s, got %v", cfg.Notify.Timeout.Duration)
	}

	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if bc.Notify.Redis.Channel != "booth:artifact_synced" || bc.Notify.Redis.Retries != 3 {
		t.Errorf("redis notify = %+v", bc.Notify.Redis)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "boothbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
