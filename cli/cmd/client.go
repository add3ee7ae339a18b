package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/cli/config"
	"github.com/pithecene-io/boothbridge/types"
)

const apiTimeout = 10 * time.Second

// errCycleInProgress mirrors the API's 409 on POST /sync.
var errCycleInProgress = errors.New("a sync cycle is already in progress")

// apiClient talks to a running bridge's local API.
type apiClient struct {
	base string
	http *http.Client
}

// newAPIClient resolves --api, then api.public_url, then api.listen from
// the config, then the default listen address.
func newAPIClient(c *cli.Context, cfg *config.Config) *apiClient {
	fallback := configVal(cfg, func(c *config.Config) string { return c.API.PublicURL })
	if fallback == "" {
		listen := configVal(cfg, func(c *config.Config) string { return c.API.Listen })
		if listen == "" {
			listen = api.DefaultListen
		}
		fallback = "http://" + listen
	}
	return &apiClient{
		base: strings.TrimRight(resolveString(c, "api", fallback), "/"),
		http: &http.Client{Timeout: apiTimeout},
	}
}

func (a *apiClient) status(ctx context.Context) (*api.Status, error) {
	var st api.Status
	if err := a.do(ctx, http.MethodGet, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (a *apiClient) sync(ctx context.Context) (types.SyncResult, error) {
	var res types.SyncResult
	err := a.do(ctx, http.MethodPost, "/sync", &res)
	return res, err
}

func (a *apiClient) uploads(ctx context.Context, limit int) ([]types.ArtifactSynced, error) {
	var recs []types.ArtifactSynced
	err := a.do(ctx, http.MethodGet, "/uploads?limit="+strconv.Itoa(limit), &recs)
	return recs, err
}

func (a *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge API unreachable at %s: %w", a.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return errCycleInProgress
	}
	if resp.StatusCode/100 != 2 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, body.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
