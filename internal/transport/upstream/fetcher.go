// Package upstream talks to the origin site over HTTP: cacheable GET
// snapshots for the gateway strategies and verbatim passthrough for
// everything else.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tryandromeda/sitegate/internal/domain"
	"github.com/tryandromeda/sitegate/internal/version"
)

const defaultTimeout = 10 * time.Second

// maxBodyBytes caps a single fetched body. The origin serves static
// pages and small assets; anything larger is a misconfiguration and is
// rejected rather than silently truncated.
const maxBodyBytes = 16 << 20

// Fetcher retrieves origin responses as cacheable snapshots.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// New creates a Fetcher for the given origin base URL.
func New(baseURL string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves a site path from the origin with a plain GET. HTTP
// error statuses are returned as responses, not errors; only transport
// failures error out.
func (f *Fetcher) Fetch(ctx context.Context, path string) (*domain.CachedResponse, error) {
	return f.Do(ctx, http.MethodGet, path, nil, nil)
}

// Do forwards a request to the origin preserving method, headers, and
// body, and returns the origin response as a snapshot. Used for the
// passthrough of non-GET requests.
func (f *Fetcher) Do(
	ctx context.Context, method, path string, header http.Header, body io.Reader,
) (*domain.CachedResponse, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build origin request %s: %w", path, err)
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "sitegate/"+version.Version)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body %s: %w", domain.ErrUpstreamUnavailable, path, err)
	}
	if len(data) > maxBodyBytes {
		// Serving a truncated body with the origin's Content-Length
		// would stall clients waiting for the missing bytes.
		return nil, fmt.Errorf("%w: %s: response exceeds %d bytes", domain.ErrUpstreamUnavailable, path, maxBodyBytes)
	}

	return &domain.CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     data,
		StoredAt: time.Now(),
	}, nil
}

// HealthCheck verifies the origin answers on its root path.
func (f *Fetcher) HealthCheck(ctx context.Context) error {
	resp, err := f.Fetch(ctx, "/")
	if err != nil {
		return err
	}
	if resp.Status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: origin returned %d", domain.ErrUpstreamUnavailable, resp.Status)
	}
	return nil
}
