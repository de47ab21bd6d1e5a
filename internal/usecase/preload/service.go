// Package preload tracks page popularity and warms the cache with the
// most visited paths, so returning readers get offline copies of the
// pages they actually use.
package preload

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/domain"
)

const visitKeyPrefix = "sitegate:visits:"

// DefaultTopN is how many popular paths a preload run warms.
const DefaultTopN = 10

// visitTTL ages out counters of paths nobody visits anymore. Refreshed
// on every visit, so popular pages never expire.
const visitTTL = 30 * 24 * time.Hour

// store is the consumer interface for visit counters.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// cache is the consumer interface for warming the dynamic partition.
type cache interface {
	Dynamic() string
	Contains(ctx context.Context, path string) bool
	Put(ctx context.Context, partition, path string, resp *domain.CachedResponse) error
}

// fetcher retrieves a path from the origin.
type fetcher interface {
	Fetch(ctx context.Context, path string) (*domain.CachedResponse, error)
}

// Service records visits and preloads the most popular pages.
type Service struct {
	store  store
	cache  cache
	fetch  fetcher
	topN   int
	pages  prometheus.Counter
	logger *zap.Logger
}

// New creates a preload service.
func New(s store, c cache, f fetcher, logger *zap.Logger) *Service {
	return &Service{
		store:  s,
		cache:  c,
		fetch:  f,
		topN:   DefaultTopN,
		logger: logger,
	}
}

// WithTopN overrides how many paths a preload run warms.
func (s *Service) WithTopN(n int) *Service {
	if n > 0 {
		s.topN = n
	}
	return s
}

// WithMetrics attaches a counter for warmed pages.
func (s *Service) WithMetrics(pages prometheus.Counter) *Service {
	s.pages = pages
	return s
}

// Record bumps the visit counter for a path and refreshes its TTL.
// Counter failures are logged and swallowed; popularity tracking must
// never affect request serving.
func (s *Service) Record(ctx context.Context, path string) {
	key := visitKeyPrefix + path
	if err := s.store.IncrBy(ctx, key, 1); err != nil {
		s.logger.Warn("Failed to record visit", zap.String("path", path), zap.Error(err))
		return
	}
	if err := s.store.Expire(ctx, key, visitTTL, false); err != nil {
		s.logger.Warn("Failed to refresh visit counter TTL", zap.String("path", path), zap.Error(err))
	}
}

// Preload fetches the top visited paths that are not cached yet into the
// dynamic partition. Returns the number of pages warmed. Individual
// fetch failures are skipped; a dead origin just means an empty run.
func (s *Service) Preload(ctx context.Context) (int, error) {
	ranked, err := s.topPaths(ctx)
	if err != nil {
		return 0, err
	}

	warmed := 0
	for _, path := range ranked {
		if warmed == s.topN {
			break
		}
		if s.cache.Contains(ctx, path) {
			continue
		}
		resp, err := s.fetch.Fetch(ctx, path)
		if err != nil || !resp.OK() {
			s.logger.Debug("Preload fetch skipped", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := s.cache.Put(ctx, s.cache.Dynamic(), path, resp); err != nil {
			s.logger.Warn("Preload store failed", zap.String("path", path), zap.Error(err))
			continue
		}
		warmed++
		if s.pages != nil {
			s.pages.Inc()
		}
	}

	s.logger.Info("Preload complete", zap.Int("warmed", warmed), zap.Int("candidates", len(ranked)))
	return warmed, nil
}

// topPaths returns all tracked paths ordered by visit count descending,
// ties broken by path for reproducibility.
func (s *Service) topPaths(ctx context.Context) ([]string, error) {
	keys, err := s.store.Scan(ctx, visitKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan visit counters: %w", err)
	}

	type visited struct {
		path  string
		count int64
	}
	entries := make([]visited, 0, len(keys))
	for _, k := range keys {
		raw, err := s.store.Get(ctx, k)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, visited{path: strings.TrimPrefix(k, visitKeyPrefix), count: n})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].path < entries[j].path
	})

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.path)
	}
	return paths, nil
}
