package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/apperr"
	logpkg "github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/request"
)

// Error kinds produced by middleware rather than handlers.
const (
	KindRequestTooLarge      = "REQUEST_TOO_LARGE"
	KindUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	KindRateLimited          = "RATE_LIMITED"
	KindTimeout              = "TIMEOUT"
)

// ErrorBody is the failure envelope, the same shape handlers answer with.
type ErrorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

func newErrorBody(r *http.Request, kind, message string) ErrorBody {
	return ErrorBody{
		Error:     kind,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: request.RequestIDFromContext(r.Context()),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newErrorBody(r, kind, message))
}

// ErrorHandler recovers from handler panics. The client sees the same
// unclassified failure as any other unexpected error.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
					zap.String("request_id", request.RequestIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				writeError(w, r, http.StatusInternalServerError, string(apperr.KindUnclassified), apperr.UnclassifiedMessage)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
