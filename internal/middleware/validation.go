package middleware

import "net/http"

// DefaultMaxBodyBytes bounds request bodies. A 500 character message fits
// comfortably even when every character is escaped.
const DefaultMaxBodyBytes = 16 << 10

// MaxBodyBytes rejects request bodies larger than n bytes. Oversized bodies
// surface as a read error in the handler's JSON decoding.
func MaxBodyBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
