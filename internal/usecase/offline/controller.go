// Package offline decides, for every intercepted GET, whether to serve
// from cache, from network, or a blended strategy, and keeps cache
// partitions consistent across version rollovers.
package offline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/domain"
)

// Controller applies the routing policy to intercepted requests.
// Each request is handled independently; the only shared state is the
// cache storage, which is safe for concurrent access. Last-write-wins on
// concurrent population is acceptable since entries are idempotent
// within a version.
type Controller struct {
	cache      Cache
	fetch      Fetcher
	rules      []Rule
	opts       Options
	strategies *prometheus.CounterVec
	logger     *zap.Logger
	writes     sync.WaitGroup
}

// New creates a controller and compiles its routing rules.
func New(cache Cache, fetch Fetcher, opts Options, logger *zap.Logger) *Controller {
	return &Controller{
		cache:  cache,
		fetch:  fetch,
		rules:  buildRules(opts),
		opts:   opts,
		logger: logger,
	}
}

// WithMetrics attaches a counter vec with labels "rule" and "outcome".
func (c *Controller) WithMetrics(strategies *prometheus.CounterVec) *Controller {
	c.strategies = strategies
	return c
}

// Handle serves one request through the first matching rule.
// Navigation requests always resolve to some renderable page; only
// sub-resource failures propagate an error.
func (c *Controller) Handle(ctx context.Context, req *Request) (*domain.CachedResponse, error) {
	rule := c.match(req)

	switch rule.Strategy {
	case StrategyBypass:
		// Forwarded verbatim: method, headers, and body all reach the
		// origin untouched.
		resp, err := c.fetch.Do(ctx, req.Method, req.Path, req.Header, req.Body)
		if err != nil {
			c.outcome(rule, "error")
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, req.Path, err)
		}
		c.outcome(rule, "network")
		return resp, nil
	case StrategyNetworkFirst:
		return c.networkFirst(ctx, rule, req)
	case StrategyContentFresh:
		return c.contentFresh(ctx, rule, req)
	default:
		return c.cacheFirst(ctx, rule, req)
	}
}

// Flush waits for in-flight opportunistic cache writes. Called on
// shutdown so writes are not lost, and by tests for determinism.
func (c *Controller) Flush() {
	c.writes.Wait()
}

func (c *Controller) match(req *Request) Rule {
	for _, r := range c.rules {
		if r.Match(req) {
			return r
		}
	}
	// buildRules always ends with a catch-all; unreachable.
	return Rule{Name: "static-assets", Strategy: StrategyCacheFirst}
}

// networkFirst tries the network and stores successful responses before
// returning; on network failure any cached copy wins, else the failure
// propagates.
func (c *Controller) networkFirst(ctx context.Context, rule Rule, req *Request) (*domain.CachedResponse, error) {
	resp, err := c.fetch.Fetch(ctx, req.Path)
	if err == nil {
		if resp.OK() {
			c.put(ctx, rule, req.Path, resp)
		}
		c.outcome(rule, "network")
		return resp, nil
	}

	if cached, ok := c.cache.Lookup(ctx, req.Path); ok {
		c.outcome(rule, "cache")
		return cached, nil
	}

	c.outcome(rule, "error")
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, req.Path, err)
}

// contentFresh is network-first for content sections, with a deeper
// fallback chain: cache, then the section's index page, then the offline
// placeholder. An HTTP error status still prefers a cached copy.
func (c *Controller) contentFresh(ctx context.Context, rule Rule, req *Request) (*domain.CachedResponse, error) {
	resp, err := c.fetch.Fetch(ctx, req.Path)
	if err == nil && resp.OK() {
		c.put(ctx, rule, req.Path, resp)
		c.outcome(rule, "network")
		return resp, nil
	}

	if cached, ok := c.cache.Lookup(ctx, req.Path); ok {
		c.outcome(rule, "cache")
		return cached, nil
	}

	if idx, ok := c.sectionIndex(ctx, req.Path); ok {
		c.outcome(rule, "fallback")
		return idx, nil
	}

	if err == nil {
		// HTTP error status with nothing cached: hand it through.
		c.outcome(rule, "network")
		return resp, nil
	}

	c.outcome(rule, "fallback")
	return c.offlineFallback(ctx), nil
}

// cacheFirst serves static assets: cache hit wins, misses hit the
// network and populate the cache opportunistically without blocking the
// response path.
func (c *Controller) cacheFirst(ctx context.Context, rule Rule, req *Request) (*domain.CachedResponse, error) {
	if cached, ok := c.cache.Lookup(ctx, req.Path); ok {
		c.outcome(rule, "cache")
		return cached, nil
	}

	resp, err := c.fetch.Fetch(ctx, req.Path)
	if err == nil {
		if resp.OK() {
			c.put(ctx, rule, req.Path, resp)
		}
		c.outcome(rule, "network")
		return resp, nil
	}

	if req.Navigation {
		c.outcome(rule, "fallback")
		return c.offlineFallback(ctx), nil
	}

	c.outcome(rule, "error")
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, req.Path, err)
}

// sectionIndex returns the cached index page of the content section the
// path belongs to, e.g. /docs/guides/foo -> /docs.
func (c *Controller) sectionIndex(ctx context.Context, path string) (*domain.CachedResponse, bool) {
	for _, prefix := range c.opts.ContentPrefixes {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		indexPath := strings.TrimSuffix(prefix, "/")
		if indexPath == "" || indexPath == path {
			continue
		}
		if resp, ok := c.cache.Lookup(ctx, indexPath); ok {
			return resp, true
		}
	}
	return nil, false
}

// offlineFallback resolves the guaranteed-renderable chain: dedicated
// offline route, then the home page, then a synthesized placeholder.
func (c *Controller) offlineFallback(ctx context.Context) *domain.CachedResponse {
	if resp, ok := c.cache.Lookup(ctx, c.opts.OfflinePath); ok {
		return resp
	}
	if resp, ok := c.cache.Lookup(ctx, c.opts.HomePath); ok {
		return resp
	}
	return placeholderResponse()
}

func placeholderResponse() *domain.CachedResponse {
	body := "<!DOCTYPE html><html><head><title>Offline</title></head>" +
		"<body><h1>You are offline</h1>" +
		"<p>This page is not cached yet. Reconnect and try again.</p></body></html>"
	return &domain.CachedResponse{
		Status:   http.StatusServiceUnavailable,
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:     []byte(body),
		StoredAt: time.Now(),
	}
}

// put stores a response in the dynamic partition. Awaited writes still
// never fail the response; failures are logged and swallowed.
func (c *Controller) put(ctx context.Context, rule Rule, path string, resp *domain.CachedResponse) {
	if rule.AwaitCacheWrite {
		if err := c.cache.Put(ctx, c.cache.Dynamic(), path, resp); err != nil {
			c.logger.Warn("Cache write failed", zap.String("path", path), zap.Error(err))
		}
		return
	}

	c.writes.Add(1)
	// Detached from the request context so an aborted request does not
	// cancel the write mid-flight.
	wctx := context.WithoutCancel(ctx)
	go func() {
		defer c.writes.Done()
		if err := c.cache.Put(wctx, c.cache.Dynamic(), path, resp); err != nil {
			c.logger.Warn("Cache write failed", zap.String("path", path), zap.Error(err))
		}
	}()
}

func (c *Controller) outcome(rule Rule, outcome string) {
	if c.strategies != nil {
		c.strategies.WithLabelValues(rule.Name, outcome).Inc()
	}
}
