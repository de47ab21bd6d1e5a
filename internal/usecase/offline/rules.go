package offline

import (
	"io"
	"net/http"
	"regexp"
	"strings"
)

// Strategy selects how a matched request is served.
type Strategy string

const (
	// StrategyBypass goes straight to the network, never touching the cache.
	StrategyBypass Strategy = "bypass"
	// StrategyNetworkFirst prefers the network, falling back to cache on failure.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyContentFresh is network-first with section-aware fallbacks.
	StrategyContentFresh Strategy = "content-fresh"
	// StrategyCacheFirst serves from cache, hitting the network only on a miss.
	StrategyCacheFirst Strategy = "cache-first"
)

// Request describes an intercepted gateway request. Header and Body are
// forwarded verbatim on the passthrough path and ignored by the caching
// strategies.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   io.Reader
	// Navigation marks a full page load (Accept: text/html) rather than a
	// sub-resource fetch.
	Navigation bool
}

// Rule pairs a predicate with a strategy. Rules are evaluated top-down,
// first match wins. AwaitCacheWrite makes the concurrency contract
// explicit: network-first routes wait for the cache write before
// returning, cache-first routes write opportunistically.
type Rule struct {
	Name            string
	Match           func(req *Request) bool
	Strategy        Strategy
	AwaitCacheWrite bool
}

// Options configures rule construction and fallback routes.
type Options struct {
	DevMode           bool
	NetworkFirstPaths []string
	ContentPrefixes   []string
	ContentPatterns   []*regexp.Regexp
	OfflinePath       string
	HomePath          string
	Manifest          []string
	DiscoverPaths     []string
}

// buildRules compiles the routing policy in precedence order.
func buildRules(opts Options) []Rule {
	rules := []Rule{
		{
			Name:     "passthrough",
			Match:    func(r *Request) bool { return r.Method != http.MethodGet },
			Strategy: StrategyBypass,
		},
	}

	if opts.DevMode {
		// Caching disabled entirely during active development.
		rules = append(rules, Rule{
			Name:     "dev-bypass",
			Match:    func(*Request) bool { return true },
			Strategy: StrategyBypass,
		})
		return rules
	}

	networkFirst := opts.NetworkFirstPaths
	rules = append(rules, Rule{
		Name: "network-first",
		Match: func(r *Request) bool {
			for _, p := range networkFirst {
				if strings.HasPrefix(r.Path, p) {
					return true
				}
			}
			return false
		},
		Strategy:        StrategyNetworkFirst,
		AwaitCacheWrite: true,
	})

	prefixes := opts.ContentPrefixes
	patterns := opts.ContentPatterns
	rules = append(rules, Rule{
		Name: "content",
		Match: func(r *Request) bool {
			for _, p := range prefixes {
				if strings.HasPrefix(r.Path, p) {
					return true
				}
			}
			for _, re := range patterns {
				if re.MatchString(r.Path) {
					return true
				}
			}
			return false
		},
		Strategy:        StrategyContentFresh,
		AwaitCacheWrite: true,
	})

	rules = append(rules, Rule{
		Name:     "static-assets",
		Match:    func(*Request) bool { return true },
		Strategy: StrategyCacheFirst,
	})

	return rules
}
