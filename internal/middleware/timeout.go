package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a request end to end, including the model call
// on a cache miss.
const DefaultRequestTimeout = 150 * time.Second

const timeoutMessage = "The situation took too long to assess. Try again."

// Timeout cancels the request context after timeout and answers 503 with the
// error envelope if the handler has not written by then.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	body, _ := json.Marshal(ErrorBody{Error: KindTimeout, Message: timeoutMessage})

	return func(next http.Handler) http.Handler {
		// http.TimeoutHandler derives the deadline context itself
		th := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// handlers that write set their own Content-Type, which wins
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}
