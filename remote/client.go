// Package remote is the bridge's client for the cloud backend.
//
// It covers the three cloud endpoints the bridge talks to: media ingestion
// (multipart upload), live snapshot ingestion, and the command queue.
// Every call carries the client timeout; callers may impose shorter
// deadlines through the context.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes bounds JSON responses read from the cloud.
const maxResponseBytes = 1 << 20

// Endpoint paths relative to the base URL.
const (
	PathMediaUpload = "/media/upload"
	PathSnapshot    = "/stream/snapshot"
	PathCommand     = "/command"
)

// ErrUploadRejected is returned when the ingestion endpoint answers 2xx
// but reports success=false or omits the id.
var ErrUploadRejected = errors.New("upload rejected by remote")

// ErrMalformedResponse is returned when a response body is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed response")

// Config configures the client.
type Config struct {
	// BaseURL is the cloud API root, e.g. https://booth.example.com/api (required).
	BaseURL string
	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

// Client talks to the cloud backend.
type Client struct {
	base    string
	headers map[string]string
	client  *http.Client
}

// New creates a client. Returns an error if the base URL is empty.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// URL returns the absolute URL for an endpoint path.
func (c *Client) URL(path string) string {
	return c.base + path
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// Body holds the start of the response body for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// MediaUpload is one artifact to send to the ingestion endpoint.
type MediaUpload struct {
	// Filename is sent as the multipart file name.
	Filename string
	// Category is sent as the "type" form field.
	Category string
	// ContentType of the file part (default image/jpeg).
	ContentType string
	Data        []byte
}

// MediaReceipt is the remote acknowledgment of an upload.
type MediaReceipt struct {
	ID  string
	URL string
}

// uploadResponse is the ingestion endpoint's JSON reply.
type uploadResponse struct {
	Success bool   `json:"success"`
	ID      flexID `json:"id"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// flexID accepts both string and numeric JSON identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// UploadMedia posts the artifact as multipart/form-data with fields
// "file" and "type". Only a response with success=true and an id counts
// as confirmation.
func (c *Client) UploadMedia(ctx context.Context, up MediaUpload) (MediaReceipt, error) {
	contentType := up.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return MediaReceipt{}, fmt.Errorf("remote: create file part: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return MediaReceipt{}, fmt.Errorf("remote: write file part: %w", err)
	}
	if err := mw.WriteField("type", up.Category); err != nil {
		return MediaReceipt{}, fmt.Errorf("remote: write type field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return MediaReceipt{}, fmt.Errorf("remote: close multipart: %w", err)
	}

	var resp uploadResponse
	if err := c.doJSON(ctx, http.MethodPost, PathMediaUpload, mw.FormDataContentType(), &body, &resp); err != nil {
		return MediaReceipt{}, fmt.Errorf("remote: upload %s: %w", up.Filename, err)
	}
	if !resp.Success || resp.ID == "" {
		reason := resp.Error
		if reason == "" {
			reason = "success=false"
		}
		return MediaReceipt{}, fmt.Errorf("remote: upload %s: %w: %s", up.Filename, ErrUploadRejected, reason)
	}
	return MediaReceipt{ID: string(resp.ID), URL: resp.URL}, nil
}

// PostSnapshot sends one live-view JPEG to the snapshot endpoint.
func (c *Client) PostSnapshot(ctx context.Context, jpeg []byte) error {
	req, err := c.newRequest(ctx, http.MethodPost, PathSnapshot, bytes.NewReader(jpeg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: snapshot: %w", err)
	}
	defer iox.DrainClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote: snapshot: %w", &StatusError{Code: resp.StatusCode})
	}
	return nil
}

// NextCommand dequeues at most one command. Returns nil, nil when the
// queue is empty. The remote marks the command processed as part of the read.
func (c *Client) NextCommand(ctx context.Context) (*types.Command, error) {
	var resp types.CommandResponse
	if err := c.doJSON(ctx, http.MethodGet, PathCommand, "", nil, &resp); err != nil {
		return nil, fmt.Errorf("remote: poll command: %w", err)
	}
	return resp.Envelope(), nil
}

// enqueueRequest is the body of POST <remote>/command.
type enqueueRequest struct {
	Command types.CommandType `json:"command"`
	Params  any               `json:"params,omitempty"`
}

// EnqueueCommand adds a command to the remote queue.
func (c *Client) EnqueueCommand(ctx context.Context, cmd types.CommandType, params any) error {
	data, err := json.Marshal(enqueueRequest{Command: cmd, Params: params})
	if err != nil {
		return fmt.Errorf("remote: marshal command: %w", err)
	}
	if err := c.doJSON(ctx, http.MethodPost, PathCommand, "application/json", bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("remote: enqueue %s: %w", cmd, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doJSON performs a request and decodes a JSON response into out.
// out may be nil when the body is not needed.
func (c *Client) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}

	data, err := iox.ReadAtMost(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
