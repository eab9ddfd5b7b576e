package middleware

import (
	"mime"
	"net/http"

	"github.com/benvon/situation-monitor/internal/apperr"
)

// ContentType requires a JSON media type on requests that carry a body.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasBody(r) {
			next.ServeHTTP(w, r)
			return
		}
		raw := r.Header.Get("Content-Type")
		if raw == "" {
			writeError(w, r, http.StatusBadRequest, string(apperr.KindBadRequest), "Content-Type header is required")
			return
		}
		mediaType, _, err := mime.ParseMediaType(raw)
		if err != nil || mediaType != "application/json" {
			writeError(w, r, http.StatusUnsupportedMediaType, KindUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		// -1 means unknown length, e.g. chunked
		return r.ContentLength != 0
	}
	return false
}
