package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		implicitOK    bool
	}{
		{name: "GET request", method: "GET", path: "/healthz", handlerStatus: http.StatusOK},
		{name: "POST request", method: "POST", path: "/api/v1/situation-meme", handlerStatus: http.StatusNotFound},
		{name: "write without header", method: "GET", path: "/version", handlerStatus: http.StatusOK, implicitOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tt.implicitOK {
					w.WriteHeader(tt.handlerStatus)
				}
				_, _ = w.Write([]byte("ok"))
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			RequestID(Logging(zap.New(core))(handler)).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 http_request log, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if got := fields["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("status_code field = %v, want %d", got, tt.handlerStatus)
			}
			if fields["path"] != tt.path {
				t.Errorf("path field = %v, want %s", fields["path"], tt.path)
			}
			if id, _ := fields["request_id"].(string); id == "" || id != w.Header().Get("X-Request-ID") {
				t.Errorf("request_id field = %q, header %q", id, w.Header().Get("X-Request-ID"))
			}
		})
	}
}

func TestAudit_LogsRateLimit(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	req := httptest.NewRequest("POST", "/api/v1/situation-meme", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("rate_limit_violation").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 rate_limit_violation log, got %d", len(entries))
	}
	if ip := entries[0].ContextMap()["ip"]; ip != "203.0.113.9" {
		t.Errorf("ip field = %v, want 203.0.113.9", ip)
	}

	Audit(zap.New(core))(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))
	if logs.Len() != 1 {
		t.Errorf("404 should not be audited, got %d logs", logs.Len())
	}
}
