package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/fanout"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/types"
)

// fakeCloud implements the ingestion, snapshot and command endpoints.
type fakeCloud struct {
	mu        sync.Mutex
	uploads   []string
	queue     []json.RawMessage
	snapshots atomic.Int64
}

func (c *fakeCloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == remote.PathMediaUpload && r.Method == http.MethodPost:
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = f.Close()
		c.mu.Lock()
		c.uploads = append(c.uploads, hdr.Filename)
		id := len(c.uploads)
		c.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"id":      "m-" + strconv.Itoa(id),
			"url":     "https://cdn.example/" + hdr.Filename,
		})

	case r.URL.Path == remote.PathSnapshot && r.Method == http.MethodPost:
		c.snapshots.Add(1)
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == remote.PathCommand && r.Method == http.MethodPost:
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.queue = append(c.queue, body)
		c.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))

	case r.URL.Path == remote.PathCommand && r.Method == http.MethodGet:
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.queue) == 0 {
			_, _ = w.Write([]byte(`{"command":null}`))
			return
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		_, _ = w.Write(next)

	default:
		http.NotFound(w, r)
	}
}

func (c *fakeCloud) Uploads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.uploads...)
}

// deadPort returns a local port with nothing listening on it.
func deadPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridge_EndToEnd(t *testing.T) {
	frame := bytes.Repeat([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 1024)
	cam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != camera.DefaultPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	}))
	defer cam.Close()

	cloud := &fakeCloud{}
	cloudSrv := httptest.NewServer(cloud)
	defer cloudSrv.Close()

	root := t.TempDir()
	cfg := Config{
		CaptureRoot: root,
		Camera: camera.Config{
			Host:        "127.0.0.1",
			Ports:       []int{deadPort(t), portOf(t, cam.URL)},
			RotateDelay: 10 * time.Millisecond,
			RetryDelay:  10 * time.Millisecond,
			FrameDelay:  20 * time.Millisecond,
		},
		Remote: remote.Config{BaseURL: cloudSrv.URL, Timeout: 2 * time.Second},
		Fanout: FanoutConfig{Config: fanout.Config{Enabled: true, Interval: 20 * time.Millisecond}},
		Sync: SyncConfig{
			Interval: 50 * time.Millisecond,
			WarmUp:   10 * time.Millisecond,
		},
		Journal:  JournalConfig{Backend: JournalMemory},
		Commands: CommandsConfig{Interval: 20 * time.Millisecond},
		API:      APIConfig{Disabled: true},
	}

	b, err := New(t.Context(), cfg, types.BridgeMeta{BridgeID: "bridge-e2e", Version: types.Version}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// The camera is reached after rotating past the dead port.
	waitFor(t, "a fresh frame", func() bool {
		_, ok := b.Frames().Fresh()
		return ok
	})
	if got := b.Metrics().Snapshot().PortRotations; got < 1 {
		t.Errorf("PortRotations = %d, want >= 1", got)
	}

	// SET_EVENT through the remote queue.
	producer, err := remote.New(remote.Config{BaseURL: cloudSrv.URL})
	if err != nil {
		t.Fatal(err)
	}
	err = producer.EnqueueCommand(t.Context(), types.CommandSetEvent,
		types.SetEventParams{Slug: "wedding_jana", Name: "Jana & Tom"})
	if err != nil {
		t.Fatalf("EnqueueCommand: %v", err)
	}
	waitFor(t, "the event switch", func() bool { return b.Events().Slug() == "wedding_jana" })

	eventDir := b.Events().SaveDirectory()
	if eventDir != filepath.Join(root, "wedding_jana") {
		t.Fatalf("SaveDirectory = %q", eventDir)
	}
	// Files land the way a capture tool writes them: hidden temp, then rename.
	for _, name := range []string{"a.jpg", "b.jpg"} {
		tmp := filepath.Join(eventDir, "."+name+".tmp")
		if err := os.WriteFile(tmp, testJPEG(t, 64, 48), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, filepath.Join(eventDir, name)); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "both artifacts synced", func() bool {
		return b.Store().Has("wedding_jana/cloud/a.jpg") && b.Store().Has("wedding_jana/cloud/b.jpg")
	})

	// Idempotent: a further cycle uploads nothing.
	waitFor(t, "an idle cycle", func() bool {
		res, err := b.Syncer().RunCycle(ctx)
		return err == nil && res.Uploaded == 0 && res.Errors == 0
	})
	if got := cloud.Uploads(); len(got) != 2 {
		t.Errorf("uploads = %v, want exactly 2", got)
	}

	waitFor(t, "snapshots at the remote", func() bool { return cloud.snapshots.Load() > 0 })

	recent, err := b.Journal().Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("journal Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("journal has %d records, want 2", len(recent))
	}
	for _, r := range recent {
		if r.Event != "wedding_jana" || r.BridgeID != "bridge-e2e" {
			t.Errorf("journal record = %+v", r)
		}
	}

	// The marker lets a restart resume the event.
	marker, err := os.ReadFile(filepath.Join(root, DefaultEventMarkerFile))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if !strings.Contains(string(marker), `"wedding_jana"`) {
		t.Errorf("marker = %s", marker)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	snap := b.Metrics().Snapshot()
	if snap.SyncUploaded != 2 || snap.CommandsApplied != 1 {
		t.Errorf("metrics = uploaded %d, applied %d", snap.SyncUploaded, snap.CommandsApplied)
	}
}

func TestBridge_APILoopFailureStopsBridge(t *testing.T) {
	// Occupy the API port so the listener fails.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := Config{
		CaptureRoot: t.TempDir(),
		Camera:      camera.Config{Ports: []int{deadPort(t)}},
		Fanout:      FanoutConfig{Disabled: true},
		Sync:        SyncConfig{Disabled: true},
		Commands:    CommandsConfig{Disabled: true},
		API:         APIConfig{},
	}
	cfg.API.Listen = ln.Addr().String()

	b, err := New(t.Context(), cfg, types.BridgeMeta{BridgeID: "b"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Run(t.Context()) }()
	select {
	case err := <-done:
		if err == nil || !strings.HasPrefix(err.Error(), "api:") {
			t.Errorf("Run = %v, want api listen failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after the api loop failed")
	}
}

func TestBridge_EventsReserveOptimizedDir(t *testing.T) {
	cfg := Config{
		CaptureRoot: t.TempDir(),
		Camera:      camera.Config{Ports: []int{deadPort(t)}},
		Fanout:      FanoutConfig{Disabled: true},
		Sync:        SyncConfig{Disabled: true, OptimizedDir: "optimized"},
		Commands:    CommandsConfig{Disabled: true},
		API:         APIConfig{Disabled: true},
	}
	b, err := New(t.Context(), cfg, types.BridgeMeta{BridgeID: "b"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Events().Apply(types.SetEventParams{Slug: "optimized"}); err == nil {
		t.Error("SET_EVENT to the optimized directory accepted")
	}
	if err := b.Events().Apply(types.SetEventParams{Slug: "cloud"}); err != nil {
		t.Errorf("slug cloud with a custom optimized dir: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			CaptureRoot: "/tmp/booth",
			Camera:      camera.Config{Ports: []int{5513, 5514}},
			Remote:      remote.Config{BaseURL: "https://booth.example"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no root", func(c *Config) { c.CaptureRoot = "" }, "capture root"},
		{"no ports", func(c *Config) { c.Camera.Ports = nil }, "candidate port"},
		{"no remote", func(c *Config) { c.Remote.BaseURL = "" }, "remote base URL"},
		{"no remote, all remote users off", func(c *Config) {
			c.Remote.BaseURL = ""
			c.Fanout.Disabled = true
			c.Sync.Disabled = true
			c.Commands.Disabled = true
		}, ""},
		{"s3 without bucket", func(c *Config) { c.Sync.Backend = BackendS3 }, "bucket"},
		{"bad backend", func(c *Config) { c.Sync.Backend = "ftp" }, "unknown backend"},
		{"fs journal without path", func(c *Config) { c.Journal.Backend = JournalFS }, "requires a path"},
		{"bad journal", func(c *Config) { c.Journal.Backend = "sqlite" }, "unknown backend"},
		{"redis source without url", func(c *Config) { c.Commands.Source = SourceRedis }, "redis source"},
		{"bad source", func(c *Config) { c.Commands.Source = "mqtt" }, "unknown source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			cfg.ApplyDefaults()
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

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{CaptureRoot: "/srv/booth"}
	cfg.ApplyDefaults()

	want := map[string][2]string{
		"sync state":   {cfg.SyncStatePath, filepath.Join("/srv/booth", DefaultSyncStateFile)},
		"event marker": {cfg.EventMarkerPath, filepath.Join("/srv/booth", DefaultEventMarkerFile)},
		"backend":      {cfg.Sync.Backend, BackendHTTP},
		"source":       {cfg.Commands.Source, SourceRemote},
		"public url":   {cfg.API.PublicURL, fmt.Sprintf("http://%s", cfg.API.Listen)},
	}
	for name, pair := range want {
		if pair[0] != pair[1] {
			t.Errorf("%s = %q, want %q", name, pair[0], pair[1])
		}
	}
	if cfg.Sync.WarmUp != DefaultSyncWarmUp {
		t.Errorf("WarmUp = %v", cfg.Sync.WarmUp)
	}
}
