package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/services/situation"
)

type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, handle string) (*situation.Result, error)
	calls       int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, handle string) (*situation.Result, error) {
	m.calls++
	return m.analyzeFunc(ctx, handle)
}

var _ SituationAnalyzer = (*mockAnalyzer)(nil)

func fixedAnalyzer() *mockAnalyzer {
	return &mockAnalyzer{analyzeFunc: func(_ context.Context, handle string) (*situation.Result, error) {
		return &situation.Result{Situation: "the tides", ProfileImageURL: "", Handle: handle}, nil
	}}
}

func serveSituation(t *testing.T, a SituationAnalyzer, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	NewSituationHandler(a, nil).RegisterRoutes(r.PathPrefix("/api/v1").Subrouter())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/situation-meme", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestGenerateSituationMeme_Success(t *testing.T) {
	t.Parallel()

	a := &mockAnalyzer{analyzeFunc: func(_ context.Context, handle string) (*situation.Result, error) {
		if handle != "ElonMusk" {
			t.Errorf("Analyze() handle = %q, want ElonMusk", handle)
		}
		return &situation.Result{
			Situation:             "the stock market",
			ProfileImageURL:       "https://pbs.example/a.jpg",
			Handle:                handle,
			RepresentativePostURL: "https://twitter.com/ElonMusk/status/1",
		}, nil
	}}
	w := serveSituation(t, a, `{"handle":"ElonMusk"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data missing: %v", body)
	}
	want := map[string]string{
		"situation":             "the stock market",
		"profileImageUrl":       "https://pbs.example/a.jpg",
		"handle":                "ElonMusk",
		"representativePostUrl": "https://twitter.com/ElonMusk/status/1",
	}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("data[%s] = %v, want %q", k, data[k], v)
		}
	}
	if _, ok := data["Cached"]; ok {
		t.Error("internal cache flag leaked into response")
	}
}

func TestGenerateSituationMeme_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
		wantCalls  int
	}{
		{
			name:       "malformed json",
			body:       `{"handle":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "BAD_REQUEST",
			wantMsg:    "Invalid request body",
		},
		{
			name:       "invalid characters",
			body:       `{"handle":"drop table;"}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "BAD_REQUEST",
		},
		{
			name:       "empty handle reaches analyzer",
			body:       `{"handle":""}`,
			err:        apperr.NewBadRequest("Twitter handle is required."),
			wantStatus: http.StatusBadRequest,
			wantKind:   "BAD_REQUEST",
			wantMsg:    "Twitter handle is required.",
			wantCalls:  1,
		},
		{
			name:       "not found",
			body:       `{"handle":"ghost"}`,
			err:        apperr.NewNotFound("User with handle @ghost not found."),
			wantStatus: http.StatusNotFound,
			wantKind:   "NOT_FOUND",
			wantMsg:    "User with handle @ghost not found.",
			wantCalls:  1,
		},
		{
			name:       "analysis failed",
			body:       `{"handle":"alice"}`,
			err:        apperr.NewAnalysisFailed(nil),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "ANALYSIS_FAILED",
			wantMsg:    "AI analysis failed.",
			wantCalls:  1,
		},
		{
			name:       "unclassified hides cause",
			body:       `{"handle":"alice"}`,
			err:        apperr.NewUnclassified(context.DeadlineExceeded),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "UNCLASSIFIED",
			wantMsg:    apperr.UnclassifiedMessage,
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &mockAnalyzer{analyzeFunc: func(context.Context, string) (*situation.Result, error) {
				return nil, tt.err
			}}
			w := serveSituation(t, a, tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body["success"] != false {
				t.Error("Expected success to be false")
			}
			if body["error"] != tt.wantKind {
				t.Errorf("error = %v, want %s", body["error"], tt.wantKind)
			}
			if tt.wantMsg != "" && body["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMsg)
			}
			if a.calls != tt.wantCalls {
				t.Errorf("analyzer calls = %d, want %d", a.calls, tt.wantCalls)
			}
		})
	}
}

func TestGenerateSituationMeme_BlankHandle(t *testing.T) {
	t.Parallel()
	a := situation.NewAnalyzer(nil, nil, nil, nil)

	for _, body := range []string{`{"handle":"   "}`, `{"handle":"\t\n"}`, `{"handle":" \u0000 "}`} {
		w := serveSituation(t, a, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
			continue
		}
		if msg := decodeBody(t, w)["message"]; msg != "Twitter handle is required." {
			t.Errorf("%s: message = %v, want the analyzer's required message", body, msg)
		}
	}
}

func TestBlankToEmpty(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"", ""},
		{"   ", ""},
		{"\x00\t", ""},
		{" Alice ", " Alice "},
		{"@bob", "@bob"},
	}
	for _, tt := range tests {
		if got := blankToEmpty(tt.in); got != tt.want {
			t.Errorf("blankToEmpty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
