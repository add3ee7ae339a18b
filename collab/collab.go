// Package collab talks to the kiosk's local collaborator services: the
// email sender and the print spooler. Each command is handed over once;
// delivery and printing happen on the other side.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/boothbridge/iox"
	"github.com/pithecene-io/boothbridge/remote"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 15 * time.Second

// Config configures a collaborator client.
type Config struct {
	// URL is the service endpoint (required).
	URL string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 15s).
	Timeout time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

type poster struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func newPoster(cfg Config, what string) (*poster, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s service URL is required", what)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &poster{url: cfg.URL, headers: cfg.Headers, client: client}, nil
}

// postJSON sends v and returns nil on 2xx.
func (p *poster) postJSON(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &remote.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}

// EmailRequest is the body sent to the email service.
type EmailRequest struct {
	Email     string   `json:"email"`
	PhotoURL  string   `json:"photoUrl"`
	PhotoURLs []string `json:"photoUrls"`
	IsTest    bool     `json:"isTest"`
}

// Mailer hands photos to the email service.
type Mailer struct {
	p *poster
}

// NewMailer creates a mailer.
func NewMailer(cfg Config) (*Mailer, error) {
	p, err := newPoster(cfg, "email")
	if err != nil {
		return nil, err
	}
	return &Mailer{p: p}, nil
}

// Send asks the email service to deliver photoURL to email.
func (m *Mailer) Send(ctx context.Context, email, photoURL string, isTest bool) error {
	if email == "" || photoURL == "" {
		return errors.New("collab: email and photo URL are required")
	}
	err := m.p.postJSON(ctx, EmailRequest{
		Email:     email,
		PhotoURL:  photoURL,
		PhotoURLs: []string{photoURL},
		IsTest:    isTest,
	})
	if err != nil {
		return fmt.Errorf("collab: send email: %w", err)
	}
	return nil
}

// PrintRequest is the body sent to the print service.
type PrintRequest struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Copies   int    `json:"copies"`
}

// Printer hands photos to the print spooler.
type Printer struct {
	p *poster
}

// NewPrinter creates a printer client.
func NewPrinter(cfg Config) (*Printer, error) {
	p, err := newPoster(cfg, "print")
	if err != nil {
		return nil, err
	}
	return &Printer{p: p}, nil
}

// Print submits one print job. Copies below one are sent as one.
func (p *Printer) Print(ctx context.Context, req PrintRequest) error {
	if req.Filename == "" {
		return errors.New("collab: print filename is required")
	}
	if req.Copies < 1 {
		req.Copies = 1
	}
	if err := p.p.postJSON(ctx, req); err != nil {
		return fmt.Errorf("collab: print: %w", err)
	}
	return nil
}
