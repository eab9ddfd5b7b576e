package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	notFound := NewNotFound("User with handle @ghost not found.")

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "classified error passes through",
			err:        notFound,
			wantKind:   KindNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "User with handle @ghost not found.",
		},
		{
			name:       "wrapped classified error passes through",
			err:        fmt.Errorf("fetch profile: %w", NewBadRequest("Twitter handle is required.")),
			wantKind:   KindBadRequest,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Twitter handle is required.",
		},
		{
			name:       "plain error becomes unclassified",
			err:        errors.New("connection refused"),
			wantKind:   KindUnclassified,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    UnclassifiedMessage,
		},
		{
			name:       "analysis failed",
			err:        NewAnalysisFailed(nil),
			wantKind:   KindAnalysisFailed,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "AI analysis failed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", got.Status, tt.wantStatus)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	t.Parallel()
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestUnclassifiedKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewUnclassified(cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	if !IsPermanent(NewNotFound("x")) {
		t.Error("NotFound should be permanent")
	}
	if !IsPermanent(NewBadRequest("x")) {
		t.Error("BadRequest should be permanent")
	}
	if IsPermanent(NewUnclassified(errors.New("x"))) {
		t.Error("Unclassified should not be permanent")
	}
	if IsPermanent(errors.New("x")) {
		t.Error("plain error should not be permanent")
	}
}
