package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pithecene-io/boothbridge/camera"
	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/fsx"
	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/metrics"
	"github.com/pithecene-io/boothbridge/syncer"
	"github.com/pithecene-io/boothbridge/types"
)

// Status is the GET /status payload. The CLI status command decodes it.
type Status struct {
	BridgeID string            `json:"bridge_id"`
	Version  string            `json:"version"`
	Hostname string            `json:"hostname,omitempty"`
	Camera   *camera.Status    `json:"camera,omitempty"`
	Frame    framebuf.Status   `json:"frame"`
	Fanout   *FanoutState      `json:"fanout,omitempty"`
	Sync     *syncer.Status    `json:"sync,omitempty"`
	Event    types.ActiveEvent `json:"event"`
	Metrics  metrics.Snapshot  `json:"metrics"`
}

// FanoutState is the POST /fanout request and response body.
type FanoutState struct {
	Enabled *bool `json:"enabled"`
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func (s *Server) handleLiveView(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.deps.Frames.Fresh()
	if !ok {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "no fresh frame")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(frame.Data)
}

// BuildStatus assembles the status payload from the shared objects.
func (s *Server) BuildStatus() Status {
	st := Status{
		BridgeID: s.deps.Meta.BridgeID,
		Version:  s.deps.Meta.Version,
		Hostname: s.deps.Meta.Hostname,
		Frame:    s.deps.Frames.Status(),
		Event:    s.deps.Events.Active(),
		Metrics:  s.deps.Metrics.Snapshot(),
	}
	if s.deps.Camera != nil {
		cs := s.deps.Camera.Status()
		st.Camera = &cs
	}
	if s.deps.Fanout != nil {
		on := s.deps.Fanout.Enabled()
		st.Fanout = &FanoutState{Enabled: &on}
	}
	if s.deps.Syncer != nil {
		ss := s.deps.Syncer.Status()
		st.Sync = &ss
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.BuildStatus())
}

func (s *Server) handleFanout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Fanout == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot fanout is not configured")
		return
	}
	var req FanoutState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	s.deps.Fanout.SetEnabled(*req.Enabled)

	on := s.deps.Fanout.Enabled()
	writeJSON(w, http.StatusOK, FanoutState{Enabled: &on})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	data, err := iox.ReadAtMost(r.Body, s.cfg.MaxReviewBytes)
	if errors.Is(err, iox.ErrTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "review image too large")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if !isJPEG(data) {
		writeError(w, http.StatusUnsupportedMediaType, "review image must be a JPEG")
		return
	}
	s.deps.Frames.InjectReview(data)
	s.logger.Debug("review image injected", map[string]any{"bytes": len(data)})
	w.WriteHeader(http.StatusNoContent)
}

// isJPEG checks the SOI marker.
func isJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "synchronizer is not configured")
		return
	}
	res, err := s.deps.Syncer.RunCycle(r.Context())
	switch {
	case errors.Is(err, syncer.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// DefaultUploadsLimit bounds GET /uploads when no limit is given.
const DefaultUploadsLimit = 50

// handleUploads lists recent journal records, newest first.
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal is not configured")
		return
	}
	limit := DefaultUploadsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []types.ArtifactSynced{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleFile serves a capture file by its path relative to the capture
// root. Hidden segments and anything escaping the root are refused.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != rel {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." || fsx.IsHidden(seg) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
	}

	full := filepath.Join(s.deps.Events.Root(), filepath.FromSlash(clean))
	f, err := os.Open(full)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer iox.DiscardClose(f)

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
