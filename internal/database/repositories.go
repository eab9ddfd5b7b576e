package database

import (
	"context"
	"time"

	"github.com/benvon/situation-monitor/internal/models"
)

// UserAnalysisStore is the cache contract used by the situation analyzer.
type UserAnalysisStore interface {
	GetFresh(ctx context.Context, handle string, cutoff time.Time) (*models.UserAnalysis, error)
	Upsert(ctx context.Context, a *models.UserAnalysis) error
}

// UserAnalysisAdmin covers the operator-facing reads and the retention purge.
type UserAnalysisAdmin interface {
	GetByHandle(ctx context.Context, handle string) (*models.UserAnalysis, error)
	List(ctx context.Context, limit int) ([]*models.UserAnalysis, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CORSPolicySource is read by the CORS reloader.
type CORSPolicySource interface {
	CORSPolicy(ctx context.Context) (*models.CORSPolicy, error)
}

// RateLimitSource is read by the rate limit reloader, which also seeds the
// default rate when none is stored.
type RateLimitSource interface {
	RateLimit(ctx context.Context) (*models.RateLimit, error)
	SetRateLimit(ctx context.Context, rate string) error
}

// Ensure concrete types implement the interfaces
var (
	_ UserAnalysisStore = (*UserAnalysisRepository)(nil)
	_ UserAnalysisAdmin = (*UserAnalysisRepository)(nil)
	_ CORSPolicySource  = (*SettingsRepository)(nil)
	_ RateLimitSource   = (*SettingsRepository)(nil)
)
