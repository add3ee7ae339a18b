package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/boothbridge/framebuf"
	"github.com/pithecene-io/boothbridge/ipc"
	"github.com/pithecene-io/boothbridge/types"
)

// FrameTapContentType is the media type of GET /frames.
const FrameTapContentType = "application/vnd.boothbridge.frames+msgpack"

// mjpegBoundary separates parts of the MJPEG stream.
const mjpegBoundary = "boothbridgeframe"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The kiosk UI is served from a different local origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// nextFrame blocks until the buffer holds a fresh frame newer than last.
// Returns false once done is closed or the server is shutting down.
func (s *Server) nextFrame(done <-chan struct{}, last uint64) (framebuf.Frame, bool) {
	for {
		ch := s.deps.Frames.Changed()
		if f, ok := s.deps.Frames.Fresh(); ok && f.Seq > last {
			return f, true
		}
		select {
		case <-ch:
		case <-done:
			return framebuf.Frame{}, false
		case <-s.closing:
			return framebuf.Frame{}, false
		}
	}
}

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if _, err := io.WriteString(w, "--"+mjpegBoundary+"\r\n"); err != nil {
		return
	}
	_ = rc.Flush()

	s.logger.Debug("mjpeg client connected", map[string]any{"remote": r.RemoteAddr})
	defer s.logger.Debug("mjpeg client disconnected", map[string]any{"remote": r.RemoteAddr})

	var last uint64
	for {
		frame, ok := s.nextFrame(r.Context().Done(), last)
		if !ok {
			return
		}
		last = frame.Seq

		_ = rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := writeMJPEGPart(w, frame.Data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeMJPEGPart writes one JPEG part followed by the next delimiter, so a
// reader can complete the part without waiting for the following frame.
func writeMJPEGPart(w io.Writer, data []byte) error {
	header := "Content-Type: image/jpeg\r\nContent-Length: " + strconv.Itoa(len(data)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n--"+mjpegBoundary+"\r\n")
	return err
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	// Clients never send data; the read loop only notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last uint64
	for {
		frame, ok := s.nextFrame(gone, last)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
		last = frame.Seq

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
			return
		}
	}
}

func (s *Server) handleFrameTap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", FrameTapContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := ipc.NewFrameEncoder(w)
	if err := enc.WriteHello(s.deps.Meta.BridgeID); err != nil {
		return
	}
	_ = rc.Flush()

	var last uint64
	for {
		frame, ok := s.nextFrame(r.Context().Done(), last)
		if !ok {
			return
		}
		last = frame.Seq

		_ = rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		err := enc.WriteFrame(&types.TapFrame{
			Type:         types.TapFrameType,
			Seq:          int64(frame.Seq),
			CapturedAtMs: frame.CapturedAt.UnixMilli(),
			Review:       frame.Review,
			Data:         frame.Data,
		})
		if err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
