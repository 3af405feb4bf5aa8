package middleware

import "net/http"

// DefaultMaxBodyBytes fits a full-resolution phone photo.
const DefaultMaxBodyBytes = 10 << 20

// MaxBody caps request bodies on POST, PUT and PATCH. Handlers see
// *http.MaxBytesError once the cap is crossed.
func MaxBody(limit int64) Middleware {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
