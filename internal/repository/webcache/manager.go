// Package webcache manages versioned cache partitions of stored HTTP
// responses: a static partition seeded at install time and a size-bounded
// dynamic partition populated opportunistically at runtime.
package webcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/db"
	"github.com/tryandromeda/sitegate/internal/domain"
)

const keyPrefix = "sitegate:cache:"

// DefaultDynamicCap bounds the dynamic partition item count.
const DefaultDynamicCap = 50

// store is the consumer interface for cache operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Manager holds named cache partitions behind get/put/evict/clear.
// Partition names follow <project>-static-<version> / <project>-dynamic-<version>;
// the version token is the sole invalidation mechanism.
type Manager struct {
	store      store
	project    string
	version    string
	dynamicCap int
	results    *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a partition manager.
func New(s store, project, version string, logger *zap.Logger) *Manager {
	return &Manager{
		store:      s,
		project:    project,
		version:    version,
		dynamicCap: DefaultDynamicCap,
		logger:     logger,
	}
}

// WithDynamicCap overrides the dynamic partition item cap.
func (m *Manager) WithDynamicCap(n int) *Manager {
	if n > 0 {
		m.dynamicCap = n
	}
	return m
}

// WithMetrics attaches a counter vec with labels "partition" and "result".
func (m *Manager) WithMetrics(results *prometheus.CounterVec) *Manager {
	m.results = results
	return m
}

// Static returns the static partition name for the current version.
func (m *Manager) Static() string {
	return fmt.Sprintf("%s-static-%s", m.project, m.version)
}

// Dynamic returns the dynamic partition name for the current version.
func (m *Manager) Dynamic() string {
	return fmt.Sprintf("%s-dynamic-%s", m.project, m.version)
}

// entryRecord is the stored JSON form of a cached response.
type entryRecord struct {
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header,omitempty"`
	Body     []byte              `json:"body,omitempty"`
	StoredAt int64               `json:"stored_at"` // unix milliseconds
}

func entryKey(partition, path string) string {
	return keyPrefix + partition + ":" + path
}

// Get retrieves a cached response from a partition. Storage errors are
// logged and reported as a miss.
func (m *Manager) Get(ctx context.Context, partition, path string) (*domain.CachedResponse, bool) {
	resp, ok := m.readEntry(ctx, partition, path)
	if ok {
		m.count(partition, "hit")
	} else {
		m.count(partition, "miss")
	}
	return resp, ok
}

// readEntry is the uninstrumented read path. Internal housekeeping
// (eviction scans) goes through here so it does not skew hit/miss
// metrics.
func (m *Manager) readEntry(ctx context.Context, partition, path string) (*domain.CachedResponse, bool) {
	data, err := m.store.Get(ctx, entryKey(partition, path))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			m.logger.Warn("Failed to read cache entry",
				zap.String("partition", partition), zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}

	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		m.logger.Warn("Failed to decode cache entry",
			zap.String("partition", partition), zap.String("path", path), zap.Error(err))
		return nil, false
	}

	return &domain.CachedResponse{
		Status:   rec.Status,
		Header:   http.Header(rec.Header),
		Body:     rec.Body,
		StoredAt: time.UnixMilli(rec.StoredAt),
	}, true
}

// Contains reports whether a path is cached in either current-version
// partition, without reading the stored body or touching the hit/miss
// counters.
func (m *Manager) Contains(ctx context.Context, path string) bool {
	for _, partition := range []string{m.Static(), m.Dynamic()} {
		ok, err := m.store.Exists(ctx, entryKey(partition, path))
		if err != nil {
			m.logger.Warn("Failed to probe cache entry",
				zap.String("partition", partition), zap.String("path", path), zap.Error(err))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Lookup checks the static partition first, then the dynamic one.
func (m *Manager) Lookup(ctx context.Context, path string) (*domain.CachedResponse, bool) {
	if resp, ok := m.Get(ctx, m.Static(), path); ok {
		return resp, true
	}
	return m.Get(ctx, m.Dynamic(), path)
}

// Put persists a response into a partition. Responses with a non-success
// status or an excluded content type (image, video, audio, font) are
// silently skipped. Writes into the dynamic partition trim the partition
// to its item cap, oldest entries first.
func (m *Manager) Put(ctx context.Context, partition, path string, resp *domain.CachedResponse) error {
	if resp == nil || !resp.Cacheable() {
		return nil
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	data, err := json.Marshal(entryRecord{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: storedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", path, err)
	}

	if err := m.store.Set(ctx, entryKey(partition, path), data); err != nil {
		return fmt.Errorf("write cache entry %s: %w", path, err)
	}

	if partition == m.Dynamic() {
		m.trimDynamic(ctx)
	}
	return nil
}

// Evict removes a single entry from a partition.
func (m *Manager) Evict(ctx context.Context, partition, path string) error {
	if err := m.store.Del(ctx, entryKey(partition, path)); err != nil {
		return fmt.Errorf("evict cache entry %s: %w", path, err)
	}
	return nil
}

// Clear removes all entries of a partition.
func (m *Manager) Clear(ctx context.Context, partition string) error {
	keys, err := m.store.Scan(ctx, keyPrefix+partition+":*")
	if err != nil {
		return fmt.Errorf("scan partition %s: %w", partition, err)
	}
	for _, k := range keys {
		if err := m.store.Del(ctx, k); err != nil {
			return fmt.Errorf("clear partition %s: %w", partition, err)
		}
	}
	return nil
}

// Keys returns the cached paths of a partition.
func (m *Manager) Keys(ctx context.Context, partition string) ([]string, error) {
	keys, err := m.store.Scan(ctx, keyPrefix+partition+":*")
	if err != nil {
		return nil, fmt.Errorf("scan partition %s: %w", partition, err)
	}
	paths := make([]string, 0, len(keys))
	prefix := keyPrefix + partition + ":"
	for _, k := range keys {
		paths = append(paths, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(paths)
	return paths, nil
}

// Partitions enumerates all existing partition names, current or stale.
func (m *Manager) Partitions(ctx context.Context) ([]string, error) {
	keys, err := m.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan partitions: %w", err)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, keyPrefix)
		name, _, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Sweep deletes every partition whose name does not carry the current
// version token or does not match the naming convention. Current-version
// partitions are never touched. Returns the deleted partition names.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	names, err := m.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	namePattern := regexp.MustCompile(
		"^" + regexp.QuoteMeta(m.project) + `-(static|dynamic)-(.+)$`,
	)

	var deleted []string
	for _, name := range names {
		parts := namePattern.FindStringSubmatch(name)
		if parts != nil && parts[2] == m.version {
			continue
		}
		if err := m.Clear(ctx, name); err != nil {
			return deleted, fmt.Errorf("sweep partition %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// trimDynamic evicts oldest entries once the dynamic partition exceeds its
// cap. Trim failures are logged; they never fail the originating write.
func (m *Manager) trimDynamic(ctx context.Context) {
	partition := m.Dynamic()
	paths, err := m.Keys(ctx, partition)
	if err != nil {
		m.logger.Warn("Failed to list dynamic partition for trim", zap.Error(err))
		return
	}
	if len(paths) <= m.dynamicCap {
		return
	}

	type aged struct {
		path     string
		storedAt int64
	}
	entries := make([]aged, 0, len(paths))
	for _, p := range paths {
		resp, ok := m.readEntry(ctx, partition, p)
		if !ok {
			continue
		}
		entries = append(entries, aged{path: p, storedAt: resp.StoredAt.UnixMilli()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].storedAt != entries[j].storedAt {
			return entries[i].storedAt < entries[j].storedAt
		}
		return entries[i].path < entries[j].path
	})

	for i := 0; i < len(entries)-m.dynamicCap; i++ {
		if err := m.Evict(ctx, partition, entries[i].path); err != nil {
			m.logger.Warn("Failed to trim dynamic partition",
				zap.String("path", entries[i].path), zap.Error(err))
		}
	}
}

func (m *Manager) count(partition, result string) {
	if m.results == nil {
		return
	}
	label := "dynamic"
	if partition == m.Static() {
		label = "static"
	}
	m.results.WithLabelValues(label, result).Inc()
}
