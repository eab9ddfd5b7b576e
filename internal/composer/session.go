package composer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/benvon/situation-monitor/internal/apperr"
)

var (
	ErrHandleRequired     = errors.New("please enter a Twitter handle")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
)

// Button labels shown for the submit action.
const (
	LabelBusy    = "Monitoring..."
	LabelRemix   = "Remix My Situation"
	LabelMonitor = "Monitor My Situation"
)

const unexpectedErrorMessage = "An unexpected error occurred."

// Remote generates a situation analysis for a handle.
type Remote interface {
	GenerateSituation(ctx context.Context, handle string) (*Analysis, error)
}

// RemoteFunc adapts a function to Remote.
type RemoteFunc func(ctx context.Context, handle string) (*Analysis, error)

func (f RemoteFunc) GenerateSituation(ctx context.Context, handle string) (*Analysis, error) {
	return f(ctx, handle)
}

// Session holds the state of one meme form: the current meme, the last error
// message and whether a submission is running.
type Session struct {
	remote   Remote
	composer *Composer
	deliver  func(context.Context, *Meme) error

	mu      sync.Mutex
	loading bool
	current *Meme
	errMsg  string
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithDelivery runs fn on each composed meme before the template choice is
// recorded; an error fails the submission and leaves the history untouched.
func WithDelivery(fn func(context.Context, *Meme) error) SessionOption {
	return func(s *Session) { s.deliver = fn }
}

// NewSession creates a session that calls remote and composes with c.
func NewSession(remote Remote, c *Composer, opts ...SessionOption) *Session {
	s := &Session{remote: remote, composer: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs one analysis for handle and composes the resulting meme.
// Remote failures are recorded for display and also returned.
func (s *Session) Submit(ctx context.Context, handle string) (*Meme, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, ErrHandleRequired
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.loading = true
	s.errMsg = ""
	s.current = nil
	s.mu.Unlock()

	meme, err := s.run(ctx, handle)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.errMsg = displayMessage(err)
		return nil, err
	}
	s.current = meme
	return meme, nil
}

func (s *Session) run(ctx context.Context, handle string) (*Meme, error) {
	a, err := s.remote.GenerateSituation(ctx, handle)
	if err != nil {
		return nil, err
	}
	// the form's own input is what the footer shows
	a.Handle = handle
	if s.deliver == nil {
		return s.composer.Next(ctx, *a)
	}
	return s.composer.NextThen(ctx, *a, func(m *Meme) error { return s.deliver(ctx, m) })
}

// Current returns the last successfully composed meme, or nil.
func (s *Session) Current() *Meme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the message of the last failed submission, or "".
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Loading reports whether a submission is running.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ButtonLabel returns the submit button text for the handle currently typed.
func (s *Session) ButtonLabel(ctx context.Context, handle string) string {
	if s.Loading() {
		return LabelBusy
	}
	if s.composer.Seen(ctx, handle) {
		return LabelRemix
	}
	return LabelMonitor
}

func displayMessage(err error) string {
	if ae := apperr.Classify(err); ae.Message != "" {
		return ae.Message
	}
	return unexpectedErrorMessage
}
