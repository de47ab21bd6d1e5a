package offline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/tryandromeda/sitegate/internal/domain"
)

// InstallReport summarizes one seeding run.
type InstallReport struct {
	Seeded     int `json:"seeded"`
	Discovered int `json:"discovered"`
	Failed     int `json:"failed"`
}

// Install seeds the static partition from the configured manifest, then
// crawls the discovery pages for content links and warms those into the
// dynamic partition. Manifest failures count against the report but do
// not abort the run; a fresh deployment may list routes that do not
// exist yet. Existing entries are overwritten in place and entries no
// longer in the manifest are dropped afterwards, so a run against a dead
// origin leaves every previously seeded offline copy intact. Re-running
// with an unchanged manifest yields exactly the manifest's paths.
func (c *Controller) Install(ctx context.Context) (*InstallReport, error) {
	if c.opts.DevMode {
		return nil, domain.ErrSeedingDisabled
	}

	report := &InstallReport{}
	for _, path := range c.opts.Manifest {
		resp, err := c.fetch.Fetch(ctx, path)
		if err != nil || !resp.OK() {
			report.Failed++
			c.logger.Warn("Manifest seed failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := c.cache.Put(ctx, c.cache.Static(), path, resp); err != nil {
			report.Failed++
			c.logger.Warn("Manifest store failed", zap.String("path", path), zap.Error(err))
			continue
		}
		report.Seeded++
	}

	c.reconcileStatic(ctx)

	for _, path := range c.discoverLinks(ctx) {
		resp, err := c.fetch.Fetch(ctx, path)
		if err != nil || !resp.OK() {
			report.Failed++
			continue
		}
		if err := c.cache.Put(ctx, c.cache.Dynamic(), path, resp); err != nil {
			report.Failed++
			continue
		}
		report.Discovered++
	}

	c.logger.Info("Install complete",
		zap.Int("seeded", report.Seeded),
		zap.Int("discovered", report.Discovered),
		zap.Int("failed", report.Failed))
	return report, nil
}

// reconcileStatic drops static entries that left the manifest. Runs
// after seeding so there is no window where the partition holds nothing.
func (c *Controller) reconcileStatic(ctx context.Context) {
	manifest := make(map[string]bool, len(c.opts.Manifest))
	for _, p := range c.opts.Manifest {
		manifest[p] = true
	}

	keys, err := c.cache.Keys(ctx, c.cache.Static())
	if err != nil {
		c.logger.Warn("Failed to list static partition for reconcile", zap.Error(err))
		return
	}
	for _, path := range keys {
		if manifest[path] {
			continue
		}
		if err := c.cache.Evict(ctx, c.cache.Static(), path); err != nil {
			c.logger.Warn("Failed to drop stale manifest entry",
				zap.String("path", path), zap.Error(err))
		}
	}
}

// Activate deletes partitions left behind by previous versions and
// returns their names. Current-version partitions are never touched, so
// activation is safe to run on every startup.
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	deleted, err := c.cache.Sweep(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep stale partitions: %w", err)
	}
	if len(deleted) > 0 {
		c.logger.Info("Swept stale cache partitions", zap.Strings("partitions", deleted))
	}
	return deleted, nil
}

// discoverLinks fetches the discovery pages and extracts same-site
// content links not already covered by the manifest. Feeds are skipped;
// they are regenerated on every publish and caching them serves no one.
func (c *Controller) discoverLinks(ctx context.Context) []string {
	seeded := make(map[string]bool, len(c.opts.Manifest))
	for _, p := range c.opts.Manifest {
		seeded[p] = true
	}

	seen := make(map[string]bool)
	for _, page := range c.opts.DiscoverPaths {
		resp, err := c.fetch.Fetch(ctx, page)
		if err != nil || !resp.OK() {
			c.logger.Warn("Discovery page unavailable", zap.String("path", page), zap.Error(err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			c.logger.Warn("Discovery page unparsable", zap.String("path", page), zap.Error(err))
			continue
		}
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			path, ok := c.normalizeLink(href)
			if ok && !seeded[path] {
				seen[path] = true
			}
		})
	}

	links := make([]string, 0, len(seen))
	for p := range seen {
		links = append(links, p)
	}
	sort.Strings(links)
	return links
}

// normalizeLink reduces an anchor href to a cacheable site path. Only
// links under a content prefix qualify; external URLs, fragments, and
// feed documents are rejected.
func (c *Controller) normalizeLink(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "", false
	}
	path := u.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", false
	}
	if isFeed(path) {
		return "", false
	}
	for _, prefix := range c.opts.ContentPrefixes {
		if strings.HasPrefix(path, prefix) {
			return path, true
		}
	}
	return "", false
}

func isFeed(path string) bool {
	for _, suffix := range []string{"feed.xml", "atom.xml", "feed.json", "rss.xml"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
