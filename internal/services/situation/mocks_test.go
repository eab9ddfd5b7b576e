package situation

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/models"
	"github.com/benvon/situation-monitor/internal/services/ai"
	"github.com/benvon/situation-monitor/internal/services/social"
)

type mockStore struct {
	mu            sync.Mutex
	getFreshFunc  func(ctx context.Context, handle string, cutoff time.Time) (*models.UserAnalysis, error)
	upsertFunc    func(ctx context.Context, a *models.UserAnalysis) error
	getFreshCalls int
	upserts       []models.UserAnalysis
}

func (m *mockStore) GetFresh(ctx context.Context, handle string, cutoff time.Time) (*models.UserAnalysis, error) {
	m.mu.Lock()
	m.getFreshCalls++
	m.mu.Unlock()
	if m.getFreshFunc != nil {
		return m.getFreshFunc(ctx, handle, cutoff)
	}
	return nil, nil
}

func (m *mockStore) Upsert(ctx context.Context, a *models.UserAnalysis) error {
	m.mu.Lock()
	m.upserts = append(m.upserts, *a)
	m.mu.Unlock()
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, a)
	}
	return nil
}

type mockSource struct {
	mu               sync.Mutex
	userDetailsFunc  func(ctx context.Context, handle string) (*social.Profile, error)
	userTimelineFunc func(ctx context.Context, userID string) ([]social.Post, error)
	detailsCalls     int
	timelineCalls    int
}

func (m *mockSource) UserDetails(ctx context.Context, handle string) (*social.Profile, error) {
	m.mu.Lock()
	m.detailsCalls++
	m.mu.Unlock()
	if m.userDetailsFunc != nil {
		return m.userDetailsFunc(ctx, handle)
	}
	return nil, nil
}

func (m *mockSource) UserTimeline(ctx context.Context, userID string) ([]social.Post, error) {
	m.mu.Lock()
	m.timelineCalls++
	m.mu.Unlock()
	if m.userTimelineFunc != nil {
		return m.userTimelineFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detailsCalls + m.timelineCalls
}

type mockProvider struct {
	mu                  sync.Mutex
	reportSituationFunc func(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error)
	prompts             []ai.SituationPrompt
}

func (m *mockProvider) ReportSituation(ctx context.Context, prompt ai.SituationPrompt) (*ai.SituationReport, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.reportSituationFunc != nil {
		return m.reportSituationFunc(ctx, prompt)
	}
	return &ai.SituationReport{Situation: "the default situation"}, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

var (
	_ database.UserAnalysisStore = (*mockStore)(nil)
	_ social.Source              = (*mockSource)(nil)
	_ ai.SituationProvider       = (*mockProvider)(nil)
)

func int64Ptr(n int64) *int64 { return &n }

func aliceSource() *mockSource {
	return &mockSource{
		userDetailsFunc: func(ctx context.Context, handle string) (*social.Profile, error) {
			return &social.Profile{ID: "42", UserName: "alice", ProfileImage: "https://img.example/alice.jpg"}, nil
		},
		userTimelineFunc: func(ctx context.Context, userID string) ([]social.Post, error) {
			return []social.Post{
				{ID: "1", FullText: "answering email is a trap", ViewCount: int64Ptr(5)},
				{ID: "2", FullText: "4,000 unread and counting", ViewCount: int64Ptr(50)},
			}, nil
		},
	}
}
