// Package index loads the static search document set and suggestion
// phrases. Documents are immutable and read once per process.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tryandromeda/sitegate/internal/domain"
)

// Index holds the loaded document set and suggestion phrase list.
type Index struct {
	Documents []domain.Document `yaml:"documents"`
	Phrases   []string          `yaml:"phrases"`
}

// Load reads an index file, or returns the built-in default set when path
// is empty.
func Load(path string) (*Index, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read search index %s: %w", path, err)
	}

	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse search index %s: %w", path, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search index %s: %w", path, err)
	}
	return &idx, nil
}

// Validate checks document uniqueness and required fields.
func (idx *Index) Validate() error {
	seen := make(map[string]struct{}, len(idx.Documents))
	for i, d := range idx.Documents {
		if d.Title == "" || d.URL == "" {
			return fmt.Errorf("document %d: title and url are required", i)
		}
		switch d.Type {
		case domain.TypeDoc, domain.TypeAPI, domain.TypeExample, domain.TypeBlog:
		default:
			return fmt.Errorf("document %q: unknown type %q", d.URL, d.Type)
		}
		if _, dup := seen[d.URL]; dup {
			return fmt.Errorf("document %q: duplicate url", d.URL)
		}
		seen[d.URL] = struct{}{}
	}
	return nil
}

// Default returns the built-in document set covering the site's pages.
func Default() *Index {
	return &Index{
		Documents: []domain.Document{
			{
				Title:    "Getting Started",
				URL:      "/docs/getting-started",
				Excerpt:  "Install the runtime and run your first script in under a minute.",
				Type:     domain.TypeDoc,
				Keywords: []string{"install", "quickstart", "setup", "run", "first steps"},
			},
			{
				Title:    "Installation Guide",
				URL:      "/docs/installation",
				Excerpt:  "Platform-specific installation instructions for Linux, macOS, and Windows.",
				Type:     domain.TypeDoc,
				Keywords: []string{"install", "installation", "linux", "macos", "windows", "shell"},
			},
			{
				Title:    "Canvas API",
				URL:      "/docs/api/canvas",
				Excerpt:  "Draw 2D graphics with the built-in canvas implementation.",
				Type:     domain.TypeAPI,
				Keywords: []string{"canvas", "graphics", "2d", "drawing", "context"},
			},
			{
				Title:    "Fetch API",
				URL:      "/docs/api/fetch",
				Excerpt:  "Make HTTP requests with the standard fetch interface.",
				Type:     domain.TypeAPI,
				Keywords: []string{"fetch", "http", "request", "response", "network"},
			},
			{
				Title:    "File System API",
				URL:      "/docs/api/fs",
				Excerpt:  "Read and write files with the runtime's file system bindings.",
				Type:     domain.TypeAPI,
				Keywords: []string{"fs", "file", "read", "write", "directory"},
			},
			{
				Title:    "FFI",
				URL:      "/docs/api/ffi",
				Excerpt:  "Call native libraries from scripts through the foreign function interface.",
				Type:     domain.TypeAPI,
				Keywords: []string{"ffi", "native", "library", "bindings", "canvas"},
			},
			{
				Title:    "Drawing Example",
				URL:      "/examples/drawing",
				Excerpt:  "A small program rendering shapes and text to a window.",
				Type:     domain.TypeExample,
				Keywords: []string{"canvas", "example", "shapes", "window"},
			},
			{
				Title:    "Web Server Example",
				URL:      "/examples/web-server",
				Excerpt:  "Serve HTTP traffic with a few lines of code.",
				Type:     domain.TypeExample,
				Keywords: []string{"server", "http", "example", "serve"},
			},
			{
				Title:    "Announcing the Runtime",
				URL:      "/blog/announcing-the-runtime",
				Excerpt:  "Why we built a new runtime and where it is headed.",
				Type:     domain.TypeBlog,
				Keywords: []string{"announcement", "release", "roadmap"},
			},
			{
				Title:    "Performance Deep Dive",
				URL:      "/blog/performance-deep-dive",
				Excerpt:  "Benchmarks and the engine work behind the latest release.",
				Type:     domain.TypeBlog,
				Keywords: []string{"performance", "benchmarks", "engine"},
			},
		},
		Phrases: []string{
			"Getting Started",
			"Installation Guide",
			"Canvas API",
			"Fetch API",
			"File System API",
			"FFI",
			"Web Server Example",
			"Drawing Example",
			"Performance",
			"Release Notes",
		},
	}
}
