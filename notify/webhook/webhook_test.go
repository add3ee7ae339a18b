package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/notify"
	"github.com/pithecene-io/boothbridge/types"
)

func testEvent() *notify.SyncedEvent {
	return notify.NewSyncedEvent(types.ArtifactSynced{
		Key:       "wedding_jana/cloud/a.jpg",
		Event:     "wedding_jana",
		Filename:  "a.jpg",
		RemoteID:  "m1",
		RemoteURL: "https://cdn/m1.jpg",
		SizeKB:    12,
		Backend:   "http",
		SyncedAt:  time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	})
}

func TestPublish_Success(t *testing.T) {
	var received notify.SyncedEvent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p, err := New(Config{URL: ts.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(p)

	if err := p.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if received.EventType != notify.EventTypeArtifactSynced {
		t.Errorf("expected artifact_synced, got %s", received.EventType)
	}
	if received.Key != "wedding_jana/cloud/a.jpg" {
		t.Errorf("expected key, got %s", received.Key)
	}
}

func TestPublish_CustomHeaders(t *testing.T) {
	var authHeader atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p, err := New(Config{
		URL:     ts.URL,
		Headers: map[string]string{"Authorization": "Bearer test-token"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(p)

	if err := p.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := authHeader.Load(); got != "Bearer test-token" {
		t.Errorf("expected Bearer test-token, got %v", got)
	}
}

func TestPublish_RetriesOnServerError(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p, err := New(Config{URL: ts.URL, Retries: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(p)

	if err := p.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish should succeed after retry: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestPublish_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	p, err := New(Config{URL: ts.URL, Retries: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(p)

	err = p.Publish(t.Context(), testEvent())
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p, err := New(Config{URL: ts.URL, Retries: 5})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(p)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := p.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://x", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
	p, err := New(Config{URL: "http://x"})
	if err != nil {
		t.Fatal(err)
	}
	if p.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v", p.config.Timeout)
	}
}
