package domain

import (
	"net/http"
	"strings"
	"time"
)

// CachedResponse is a stored HTTP response keyed by request path.
type CachedResponse struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// OK reports whether the response carries an HTTP success status.
func (r *CachedResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ContentType returns the media type without parameters.
func (r *CachedResponse) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Media types excluded from persistence to bound storage growth.
var uncacheablePrefixes = []string{"image/", "video/", "audio/", "font/"}

// Cacheable reports whether the response may be persisted: success status
// and a content type outside the excluded media families.
func (r *CachedResponse) Cacheable() bool {
	if !r.OK() {
		return false
	}
	ct := r.ContentType()
	for _, p := range uncacheablePrefixes {
		if strings.HasPrefix(ct, p) {
			return false
		}
	}
	return true
}
