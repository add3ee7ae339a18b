package remote

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(Config{BaseURL: ts.URL + "/api/", Headers: map[string]string{"Authorization": "Bearer k"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(iox.CloseFunc(c))
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestUploadMedia_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api"+PathMediaUpload {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("type"); got != "photo" {
			t.Errorf("expected type=photo, got %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "jpeg-bytes" {
			t.Errorf("unexpected file content %q", data)
		}
		if hdr.Filename != "a.jpg" {
			t.Errorf("expected filename a.jpg, got %q", hdr.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "m-1", "url": "https://cdn/a.jpg"})
	})

	receipt, err := c.UploadMedia(t.Context(), MediaUpload{Filename: "a.jpg", Category: "photo", Data: []byte("jpeg-bytes")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if receipt.ID != "m-1" || receipt.URL != "https://cdn/a.jpg" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
}

func TestUploadMedia_NumericID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"id":42,"url":"https://cdn/42.jpg"}`)
	})
	receipt, err := c.UploadMedia(t.Context(), MediaUpload{Filename: "b.jpg", Data: []byte("x")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if receipt.ID != "42" {
		t.Errorf("expected id 42, got %q", receipt.ID)
	}
}

func TestUploadMedia_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"quota"}`)
	})
	_, err := c.UploadMedia(t.Context(), MediaUpload{Filename: "c.jpg", Data: []byte("x")})
	if !errors.Is(err, ErrUploadRejected) {
		t.Errorf("expected ErrUploadRejected, got %v", err)
	}
}

func TestUploadMedia_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	})
	_, err := c.UploadMedia(t.Context(), MediaUpload{Filename: "d.jpg", Data: []byte("x")})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestUploadMedia_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.UploadMedia(t.Context(), MediaUpload{Filename: "e.jpg", Data: []byte("x")})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if !IsRetriable(err) {
		t.Error("5xx should be retriable")
	}
}

func TestPostSnapshot(t *testing.T) {
	var gotType string
	var gotLen int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api"+PathSnapshot {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotLen = len(data)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.PostSnapshot(t.Context(), make([]byte, 2048)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if gotType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", gotType)
	}
	if gotLen != 2048 {
		t.Errorf("expected 2048 bytes, got %d", gotLen)
	}
}

func TestNextCommand(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		calls++
		if calls == 1 {
			_, _ = io.WriteString(w, `{"id":"c1","command":"SET_EVENT","params":{"slug":"s","name":"S"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"command":null}`)
	})

	cmd, err := c.NextCommand(t.Context())
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if cmd == nil || cmd.Type != types.CommandSetEvent || cmd.ID != "c1" {
		t.Fatalf("unexpected command %+v", cmd)
	}

	cmd, err = c.NextCommand(t.Context())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if cmd != nil {
		t.Errorf("expected nil command, got %+v", cmd)
	}
}

func TestEnqueueCommand(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	err := c.EnqueueCommand(t.Context(), types.CommandSetEvent, types.SetEventParams{Slug: "s", Name: "S"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got["command"] != "SET_EVENT" {
		t.Errorf("unexpected body %v", got)
	}
	params, _ := got["params"].(map[string]any)
	if params["slug"] != "s" {
		t.Errorf("unexpected params %v", got["params"])
	}
}

func TestIsOffline(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	c, err := New(Config{BaseURL: "http://" + addr, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.NextCommand(t.Context())
	if err == nil {
		t.Fatal("expected error against closed port")
	}
	if !IsOffline(err) {
		t.Errorf("expected offline classification for %v", err)
	}

	if IsOffline(&StatusError{Code: 500}) {
		t.Error("status errors are not offline")
	}
	if IsOffline(nil) {
		t.Error("nil is not offline")
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&StatusError{Code: 400}, false},
		{&StatusError{Code: 404}, false},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 503}, true},
		{errors.New("dial tcp: refused"), true},
	}
	for _, tt := range tests {
		if got := IsRetriable(tt.err); got != tt.want {
			t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
