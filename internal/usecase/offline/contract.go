package offline

import (
	"context"
	"io"
	"net/http"

	"github.com/tryandromeda/sitegate/internal/domain"
)

// Cache is the consumer interface for the partition manager.
type Cache interface {
	Static() string
	Dynamic() string
	Lookup(ctx context.Context, path string) (*domain.CachedResponse, bool)
	Put(ctx context.Context, partition, path string, resp *domain.CachedResponse) error
	Evict(ctx context.Context, partition, path string) error
	Keys(ctx context.Context, partition string) ([]string, error)
	Sweep(ctx context.Context) ([]string, error)
}

// Fetcher retrieves pages from the origin. Fetch issues cacheable GETs;
// Do forwards a request verbatim for the passthrough path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (*domain.CachedResponse, error)
	Do(ctx context.Context, method, path string, header http.Header, body io.Reader) (*domain.CachedResponse, error)
}
