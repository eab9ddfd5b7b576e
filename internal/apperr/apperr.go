// Package apperr defines the error taxonomy returned by the situation analysis
// operation and mapped onto HTTP status codes by the handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindBadRequest     Kind = "BAD_REQUEST"     // 400
	KindNotFound       Kind = "NOT_FOUND"       // 404
	KindAnalysisFailed Kind = "ANALYSIS_FAILED" // 500
	KindUnclassified   Kind = "UNCLASSIFIED"    // 500
)

// UnclassifiedMessage is the only message exposed for unexpected failures.
const UnclassifiedMessage = "An error occurred during the process."

// Error is a classified failure with a caller-safe message. Err carries the
// underlying cause for logging and is never shown to callers.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewBadRequest creates a 400 error for invalid input.
func NewBadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: msg}
}

// NewNotFound creates a 404 error.
func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

// NewAnalysisFailed creates a 500 error for a model response that carried no usable result.
func NewAnalysisFailed(cause error) *Error {
	return &Error{
		Kind:    KindAnalysisFailed,
		Status:  http.StatusInternalServerError,
		Message: "AI analysis failed.",
		Err:     cause,
	}
}

// NewUnclassified wraps an unexpected failure behind the generic message.
func NewUnclassified(cause error) *Error {
	return &Error{
		Kind:    KindUnclassified,
		Status:  http.StatusInternalServerError,
		Message: UnclassifiedMessage,
		Err:     cause,
	}
}

// Classify returns err unchanged when it already carries a Kind, and wraps it
// as Unclassified otherwise. A nil err yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewUnclassified(err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// IsPermanent reports whether retrying the same input cannot succeed.
func IsPermanent(err error) bool {
	return Is(err, KindBadRequest) || Is(err, KindNotFound)
}
