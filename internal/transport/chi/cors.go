package chi

import "net/http"

// corsPaths are routes served to browser scripts from any page of the
// site; everything else is same-origin and needs no CORS headers.
var corsPaths = map[string]struct{}{
	"/api/search":      {},
	"/api/suggestions": {},
}

// CORS returns a middleware that answers preflight requests and marks
// the search API as publicly readable.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := corsPaths[r.URL.Path]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
