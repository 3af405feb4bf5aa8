package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns a handler panic into a JSON 500 that carries the request
// id, so a client report can be matched to the logged stack.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(rec)
				}

				id := RequestID(r.Context())
				logger.Error("handler panic",
					"panic", fmt.Sprint(rec),
					"request_id", id,
					"route", r.Method+" "+r.URL.Path,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, "{\"error\":%q}\n", "internal error (request "+id+")")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
