package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=60")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", nil))

	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("handler header lost: Content-Type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "max-age=60" {
		t.Errorf("handler should be able to override Cache-Control, got %q", got)
	}
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy"} {
		if got := w.Header().Get(h); got != securityHeaders[h] {
			t.Errorf("%s = %q, want %q", h, got, securityHeaders[h])
		}
	}
}
