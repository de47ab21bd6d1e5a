package offline

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/db/memory"
	"github.com/tryandromeda/sitegate/internal/domain"
	"github.com/tryandromeda/sitegate/internal/repository/webcache"
)

// mockFetcher serves canned responses per path; unknown paths fail like
// a dead network. Do records the forwarded method and body so tests can
// assert the passthrough stays verbatim.
type mockFetcher struct {
	responses map[string]*domain.CachedResponse
	err       error
	calls     []string
	forwarded []forwardedRequest
}

type forwardedRequest struct {
	method string
	path   string
	body   string
}

func (f *mockFetcher) Fetch(_ context.Context, path string) (*domain.CachedResponse, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[path]; ok {
		return resp, nil
	}
	return nil, domain.ErrUpstreamUnavailable
}

func (f *mockFetcher) Do(
	_ context.Context, method, path string, _ http.Header, body io.Reader,
) (*domain.CachedResponse, error) {
	var b []byte
	if body != nil {
		b, _ = io.ReadAll(body)
	}
	f.forwarded = append(f.forwarded, forwardedRequest{method: method, path: path, body: string(b)})
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[path]; ok {
		return resp, nil
	}
	return nil, domain.ErrUpstreamUnavailable
}

func htmlResponse(body string) *domain.CachedResponse {
	return &domain.CachedResponse{
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:     []byte(body),
		StoredAt: time.Now(),
	}
}

func testOptions() Options {
	return Options{
		NetworkFirstPaths: []string{"/api/"},
		ContentPrefixes:   []string{"/docs/", "/blog/"},
		ContentPatterns:   []*regexp.Regexp{regexp.MustCompile(`^/docs$`), regexp.MustCompile(`^/blog$`)},
		OfflinePath:       "/offline",
		HomePath:          "/",
		Manifest:          []string{"/", "/docs", "/styles.css"},
		DiscoverPaths:     []string{"/docs", "/blog"},
	}
}

func newTestController(fetch Fetcher, opts Options) (*Controller, *webcache.Manager) {
	cache := webcache.New(memory.NewStore(), "sitegate", "v1", zap.NewNop())
	return New(cache, fetch, opts, zap.NewNop()), cache
}

func TestHandle_CacheFirstServesCachedCopy(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{}
	ctrl, cache := newTestController(fetch, testOptions())

	want := htmlResponse("cached asset")
	if err := cache.Put(ctx, cache.Static(), "/main.js", want); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/main.js"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "cached asset" {
		t.Errorf("body = %q, want cached copy", got.Body)
	}
	if len(fetch.calls) != 0 {
		t.Errorf("network was contacted on a cache hit: %v", fetch.calls)
	}
}

func TestHandle_CacheFirstMissPopulatesCache(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/main.js": htmlResponse("fresh asset"),
	}}
	ctrl, cache := newTestController(fetch, testOptions())

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/main.js"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "fresh asset" {
		t.Errorf("body = %q, want network response", got.Body)
	}

	ctrl.Flush()
	if _, ok := cache.Get(ctx, cache.Dynamic(), "/main.js"); !ok {
		t.Error("response was not written back to the dynamic partition")
	}
}

func TestHandle_NetworkFirstFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()

	// First pass online: the response lands in cache.
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/api/search": htmlResponse("live data"),
	}}
	ctrl, cache := newTestController(fetch, opts)
	if _, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/api/search"}); err != nil {
		t.Fatalf("online Handle: %v", err)
	}

	// Second pass offline: the cached copy is served.
	fetch.err = domain.ErrUpstreamUnavailable
	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/api/search"})
	if err != nil {
		t.Fatalf("offline Handle: %v", err)
	}
	if string(got.Body) != "live data" {
		t.Errorf("body = %q, want prior cached response", got.Body)
	}

	// No cached copy anywhere: failure propagates.
	if err := cache.Clear(ctx, cache.Dynamic()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/api/search"}); err == nil {
		t.Error("expected error when network and cache both fail")
	}
}

func TestHandle_ContentFreshPrefersCacheOverErrorStatus(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/docs/guide": {Status: http.StatusNotFound, Body: []byte("gone")},
	}}
	ctrl, cache := newTestController(fetch, testOptions())

	want := htmlResponse("yesterday's guide")
	if err := cache.Put(ctx, cache.Dynamic(), "/docs/guide", want); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/docs/guide", Navigation: true})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "yesterday's guide" {
		t.Errorf("body = %q, want cached copy over 404", got.Body)
	}
}

func TestHandle_ContentFreshFallsBackToSectionIndex(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{err: domain.ErrUpstreamUnavailable}
	ctrl, cache := newTestController(fetch, testOptions())

	if err := cache.Put(ctx, cache.Static(), "/docs", htmlResponse("docs index")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/docs/never-cached", Navigation: true})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "docs index" {
		t.Errorf("body = %q, want the section index page", got.Body)
	}
}

func TestHandle_OfflineFallbackChain(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{err: domain.ErrUpstreamUnavailable}
	ctrl, cache := newTestController(fetch, testOptions())

	nav := &Request{Method: http.MethodGet, Path: "/docs/missing", Navigation: true}

	// Nothing cached: synthesized placeholder.
	got, err := ctrl.Handle(ctx, nav)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 placeholder", got.Status)
	}
	if ct := got.ContentType(); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("placeholder content type = %q, want text/html", ct)
	}

	// Home cached: home wins over the placeholder.
	if err := cache.Put(ctx, cache.Static(), "/", htmlResponse("home")); err != nil {
		t.Fatalf("seed home: %v", err)
	}
	got, err = ctrl.Handle(ctx, nav)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "home" {
		t.Errorf("body = %q, want home page", got.Body)
	}

	// Offline route cached: it wins over home.
	if err := cache.Put(ctx, cache.Static(), "/offline", htmlResponse("offline page")); err != nil {
		t.Fatalf("seed offline: %v", err)
	}
	got, err = ctrl.Handle(ctx, nav)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "offline page" {
		t.Errorf("body = %q, want offline page", got.Body)
	}
}

func TestHandle_NonGetBypassesCache(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/api/search": htmlResponse("posted"),
	}}
	ctrl, cache := newTestController(fetch, testOptions())

	if _, err := ctrl.Handle(ctx, &Request{Method: http.MethodPost, Path: "/api/search"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ctrl.Flush()

	keys, err := cache.Keys(ctx, cache.Dynamic())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("non-GET response was cached: %v", keys)
	}
}

func TestHandle_PassthroughPreservesMethodAndBody(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/contact": htmlResponse("submitted"),
	}}
	ctrl, _ := newTestController(fetch, testOptions())

	got, err := ctrl.Handle(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/contact",
		Body:   strings.NewReader("name=andromeda"),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "submitted" {
		t.Errorf("body = %q, want origin response", got.Body)
	}

	if len(fetch.forwarded) != 1 {
		t.Fatalf("forwarded %d requests, want 1", len(fetch.forwarded))
	}
	fwd := fetch.forwarded[0]
	if fwd.method != http.MethodPost {
		t.Errorf("origin saw method %q, want POST", fwd.method)
	}
	if fwd.body != "name=andromeda" {
		t.Errorf("origin saw body %q, request body was dropped", fwd.body)
	}
	if len(fetch.calls) != 0 {
		t.Errorf("passthrough used the GET fetch path: %v", fetch.calls)
	}
}

func TestHandle_DevModeBypassesEverything(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.DevMode = true
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/docs/guide": htmlResponse("dev build"),
	}}
	ctrl, cache := newTestController(fetch, opts)

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/docs/guide"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if string(got.Body) != "dev build" {
		t.Errorf("body = %q, want live response", got.Body)
	}
	ctrl.Flush()

	keys, err := cache.Keys(ctx, cache.Dynamic())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("dev mode still cached: %v", keys)
	}
}

func TestHandle_ImageNeverPersisted(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{responses: map[string]*domain.CachedResponse{
		"/logo.png": {
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"image/png"}},
			Body:   []byte{0x89, 0x50, 0x4e, 0x47},
		},
	}}
	ctrl, cache := newTestController(fetch, testOptions())

	got, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/logo.png"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got.Status != http.StatusOK {
		t.Errorf("status = %d, want 200 passthrough", got.Status)
	}
	ctrl.Flush()

	if _, ok := cache.Lookup(ctx, "/logo.png"); ok {
		t.Error("image response must not be persisted")
	}
}

func TestHandle_SubResourceFailurePropagates(t *testing.T) {
	ctx := context.Background()
	fetch := &mockFetcher{err: domain.ErrUpstreamUnavailable}
	ctrl, _ := newTestController(fetch, testOptions())

	_, err := ctrl.Handle(ctx, &Request{Method: http.MethodGet, Path: "/main.js"})
	if err == nil {
		t.Fatal("expected error for uncached sub-resource while offline")
	}
}
