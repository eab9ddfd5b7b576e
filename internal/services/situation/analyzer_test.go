package situation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/models"
	"github.com/benvon/situation-monitor/internal/services/ai"
	"github.com/benvon/situation-monitor/internal/services/social"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestAnalyze_CacheHitMakesNoExternalCalls(t *testing.T) {
	t.Parallel()

	store := &mockStore{
		getFreshFunc: func(ctx context.Context, handle string, cutoff time.Time) (*models.UserAnalysis, error) {
			if handle != "alice" {
				t.Errorf("GetFresh handle = %q, want alice", handle)
			}
			if want := fixedNow.Add(-24 * time.Hour); !cutoff.Equal(want) {
				t.Errorf("cutoff = %s, want %s", cutoff, want)
			}
			return &models.UserAnalysis{
				Handle:          "alice",
				Situation:       "the inbox",
				ProfileImageURL: "https://img.example/alice.jpg",
				UpdatedAt:       fixedNow.Add(-time.Hour),
			}, nil
		},
	}
	source := aliceSource()
	provider := &mockProvider{}
	a := NewAnalyzer(store, source, provider, nil, WithClock(clock))

	res, err := a.Analyze(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Situation != "the inbox" || res.ProfileImageURL != "https://img.example/alice.jpg" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Handle != "Alice" {
		t.Errorf("Handle = %q, want the caller's input %q", res.Handle, "Alice")
	}
	if !res.Cached {
		t.Error("expected Cached = true")
	}
	if source.calls() != 0 || provider.calls() != 0 || len(store.upserts) != 0 {
		t.Errorf("cache hit made external calls: source=%d provider=%d upserts=%d",
			source.calls(), provider.calls(), len(store.upserts))
	}
}

func TestAnalyze_MissPathUpsertsNormalizedSituation(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			return &ai.SituationReport{Situation: "ignoring her inbox", RepresentativeTweetURL: "https://twitter.com/alice/status/2"}, nil
		},
	}
	a := NewAnalyzer(store, aliceSource(), provider, nil, WithClock(clock))

	res, err := a.Analyze(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Situation != "the ignoring her inbox" {
		t.Errorf("Situation = %q, want %q", res.Situation, "the ignoring her inbox")
	}
	if res.Cached {
		t.Error("expected Cached = false")
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(store.upserts))
	}
	row := store.upserts[0]
	if row.Handle != "alice" || row.Situation != "the ignoring her inbox" {
		t.Errorf("upserted row = %+v", row)
	}
	if row.ProfileImageURL != "https://img.example/alice.jpg" {
		t.Errorf("ProfileImageURL = %q", row.ProfileImageURL)
	}
	if row.RepresentativePostURL != "https://twitter.com/alice/status/2" {
		t.Errorf("RepresentativePostURL = %q", row.RepresentativePostURL)
	}
	if !row.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %s, want %s", row.UpdatedAt, fixedNow)
	}
}

func TestAnalyze_PromptRanksPostsByViews(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{}
	a := NewAnalyzer(&mockStore{}, aliceSource(), provider, nil, WithClock(clock))

	if _, err := a.Analyze(context.Background(), "alice"); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if provider.calls() != 1 {
		t.Fatalf("expected one model call, got %d", provider.calls())
	}
	prompt := provider.prompts[0]
	want := "Tweet 2: \"4,000 unread and counting\" \nView Count: 50\nURL: https://twitter.com/alice/status/2" +
		"\n---\n" +
		"Tweet 1: \"answering email is a trap\" \nView Count: 5\nURL: https://twitter.com/alice/status/1"
	if prompt.Posts != want {
		t.Errorf("Posts =\n%s\nwant\n%s", prompt.Posts, want)
	}
	if !strings.Contains(prompt.UserDetails, `"userName":"alice"`) {
		t.Errorf("UserDetails = %s", prompt.UserDetails)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handle      string
		source      *mockSource
		provider    *mockProvider
		store       *mockStore
		wantKind    apperr.Kind
		wantMessage string
		wantCalls   int
	}{
		{
			name:        "empty handle",
			handle:      "   ",
			source:      aliceSource(),
			wantKind:    apperr.KindBadRequest,
			wantMessage: "Twitter handle is required.",
			wantCalls:   0,
		},
		{
			name:   "unresolved handle",
			handle: "ghost",
			source: &mockSource{
				userDetailsFunc: func(ctx context.Context, handle string) (*social.Profile, error) { return nil, nil },
			},
			wantKind:    apperr.KindNotFound,
			wantMessage: "User with handle @ghost not found.",
			wantCalls:   1,
		},
		{
			name:   "profile without id",
			handle: "ghost",
			source: &mockSource{
				userDetailsFunc: func(ctx context.Context, handle string) (*social.Profile, error) {
					return &social.Profile{}, nil
				},
			},
			wantKind:    apperr.KindNotFound,
			wantMessage: "User with handle @ghost not found.",
			wantCalls:   1,
		},
		{
			name:   "empty timeline",
			handle: "quiet",
			source: &mockSource{
				userDetailsFunc: func(ctx context.Context, handle string) (*social.Profile, error) {
					return &social.Profile{ID: "7", UserName: "quiet"}, nil
				},
				userTimelineFunc: func(ctx context.Context, userID string) ([]social.Post, error) { return nil, nil },
			},
			wantKind:    apperr.KindNotFound,
			wantMessage: "No tweets found for @quiet.",
			wantCalls:   2,
		},
		{
			name:   "source failure",
			handle: "alice",
			source: &mockSource{
				userDetailsFunc: func(ctx context.Context, handle string) (*social.Profile, error) {
					return nil, errors.New("connection reset")
				},
			},
			wantKind:    apperr.KindUnclassified,
			wantMessage: apperr.UnclassifiedMessage,
			wantCalls:   1,
		},
		{
			name:   "no tool call",
			handle: "alice",
			source: aliceSource(),
			provider: &mockProvider{
				reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
					return nil, ai.ErrNoToolCall
				},
			},
			wantKind:    apperr.KindAnalysisFailed,
			wantMessage: "AI analysis failed.",
			wantCalls:   2,
		},
		{
			name:   "model failure",
			handle: "alice",
			source: aliceSource(),
			provider: &mockProvider{
				reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
					return nil, errors.New("upstream 500")
				},
			},
			wantKind:    apperr.KindUnclassified,
			wantMessage: apperr.UnclassifiedMessage,
			wantCalls:   2,
		},
		{
			name:   "store failure",
			handle: "alice",
			source: aliceSource(),
			store: &mockStore{
				upsertFunc: func(ctx context.Context, a *models.UserAnalysis) error { return errors.New("disk full") },
			},
			wantKind:    apperr.KindUnclassified,
			wantMessage: apperr.UnclassifiedMessage,
			wantCalls:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := tt.store
			if store == nil {
				store = &mockStore{}
			}
			provider := tt.provider
			if provider == nil {
				provider = &mockProvider{}
			}
			a := NewAnalyzer(store, tt.source, provider, nil, WithClock(clock))

			res, err := a.Analyze(context.Background(), tt.handle)
			if res != nil {
				t.Errorf("expected nil result, got %+v", res)
			}
			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("error %v is not an *apperr.Error", err)
			}
			if appErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", appErr.Kind, tt.wantKind)
			}
			if appErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", appErr.Message, tt.wantMessage)
			}
			if got := tt.source.calls(); got != tt.wantCalls {
				t.Errorf("source calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestAnalyze_ModelErrorKeepsCause(t *testing.T) {
	t.Parallel()

	rateLimited := &ai.APIError{StatusCode: 429}
	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			return nil, rateLimited
		},
	}
	a := NewAnalyzer(&mockStore{}, aliceSource(), provider, nil, WithClock(clock))

	_, err := a.Analyze(context.Background(), "alice")
	if !ai.IsRateLimitError(err) {
		t.Errorf("expected rate limit cause to remain reachable, got %v", err)
	}
}

func TestAnalyze_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			once.Do(func() { close(entered) })
			<-release
			return &ai.SituationReport{Situation: "the queue"}, nil
		},
	}
	a := NewAnalyzer(&mockStore{}, aliceSource(), provider, nil, WithClock(clock))

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = a.Analyze(context.Background(), "alice")
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = a.Analyze(context.Background(), "ALICE")
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if provider.calls() != 1 {
		t.Errorf("model called %d times, want 1", provider.calls())
	}
	if results[0].Handle != "alice" || results[1].Handle != "ALICE" {
		t.Errorf("each caller should get its own input handle back: %q, %q", results[0].Handle, results[1].Handle)
	}
}

func TestAnalyze_CallerCancelDoesNotAbortSharedWork(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			once.Do(func() { close(entered) })
			select {
			case <-release:
				return &ai.SituationReport{Situation: "the outage"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	store := &mockStore{}
	a := NewAnalyzer(store, aliceSource(), provider, nil, WithClock(clock))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.Analyze(firstCtx, "alice")
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		res *Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := a.Analyze(context.Background(), "alice")
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !apperr.Is(err, apperr.KindUnclassified) || !errors.Is(err, context.Canceled) {
			t.Errorf("first caller error = %v, want unclassified context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared analysis")
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller error = %v", got.err)
	}
	if got.res.Situation != "the outage" {
		t.Errorf("Situation = %q, want %q", got.res.Situation, "the outage")
	}
	if provider.calls() != 1 {
		t.Errorf("model called %d times, want 1", provider.calls())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.upserts) != 1 {
		t.Errorf("upserts = %d, want the paid-for result stored once", len(store.upserts))
	}
}

func TestAnalyze_SharedWorkIsBounded(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	a := NewAnalyzer(&mockStore{}, aliceSource(), provider, nil,
		WithClock(clock), WithAnalysisTimeout(20*time.Millisecond))

	_, err := a.Analyze(context.Background(), "alice")
	if !apperr.Is(err, apperr.KindUnclassified) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Analyze() error = %v, want unclassified deadline exceeded", err)
	}
}

// Alice scenario against a real store: first call analyzes, second call within
// the window is served from the cache.
func TestAnalyze_EndToEndWithSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := database.NewUserAnalysisRepository(db)

	now := time.Now()
	source := aliceSource()
	provider := &mockProvider{
		reportSituationFunc: func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
			return &ai.SituationReport{Situation: "ignoring her inbox", RepresentativeTweetURL: "https://twitter.com/alice/status/2"}, nil
		},
	}
	a := NewAnalyzer(store, source, provider, nil, WithClock(func() time.Time { return now }))

	first, err := a.Analyze(ctx, "alice")
	if err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}
	if first.Situation != "the ignoring her inbox" || first.Handle != "alice" {
		t.Errorf("first result = %+v", first)
	}
	if first.ProfileImageURL != "https://img.example/alice.jpg" {
		t.Errorf("ProfileImageURL = %q", first.ProfileImageURL)
	}

	sourceCalls, modelCalls := source.calls(), provider.calls()

	now = now.Add(time.Hour)
	second, err := a.Analyze(ctx, "Alice")
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if !second.Cached || second.Situation != first.Situation {
		t.Errorf("second result = %+v, want cached %q", second, first.Situation)
	}
	if source.calls() != sourceCalls || provider.calls() != modelCalls {
		t.Error("cached call reached the social source or the model")
	}

	now = now.Add(24 * time.Hour)
	third, err := a.Analyze(ctx, "alice")
	if err != nil {
		t.Fatalf("third Analyze() error = %v", err)
	}
	if third.Cached {
		t.Error("stale row should take the miss path")
	}
	if provider.calls() != modelCalls+1 {
		t.Errorf("model calls = %d, want %d", provider.calls(), modelCalls+1)
	}
}
