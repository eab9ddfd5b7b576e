// Package situation decides whether a handle's situation comes from the cache or
// from a fresh social fetch and model analysis.
package situation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/database"
	logpkg "github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/models"
	"github.com/benvon/situation-monitor/internal/services/ai"
	"github.com/benvon/situation-monitor/internal/services/social"
)

// DefaultTTL is how long a stored analysis is served without re-analysis.
const DefaultTTL = 24 * time.Hour

// DefaultAnalysisTimeout bounds one shared analysis, independent of any caller.
const DefaultAnalysisTimeout = 150 * time.Second

const tracerName = "github.com/benvon/situation-monitor/internal/services/situation"

// Result is what callers of the analysis operation receive.
type Result struct {
	Situation             string `json:"situation"`
	ProfileImageURL       string `json:"profileImageUrl"`
	Handle                string `json:"handle"`
	RepresentativePostURL string `json:"representativePostUrl,omitempty"`
	// Cached is true when the result came from a fresh stored row.
	Cached bool `json:"-"`
}

// Analyzer implements the cache-or-fetch analysis flow.
type Analyzer struct {
	store    database.UserAnalysisStore
	source   social.Source
	provider ai.SituationProvider
	logger   *zap.Logger
	tracer   trace.Tracer
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	inflight singleflight.Group
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(a *Analyzer) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithAnalysisTimeout bounds the shared work behind coalesced calls.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer over the given store, social source and model provider.
func NewAnalyzer(store database.UserAnalysisStore, source social.Source, provider ai.SituationProvider, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		store:    store,
		source:   source,
		provider: provider,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		ttl:      DefaultTTL,
		timeout:  DefaultAnalysisTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the situation for handle. Every returned error is an *apperr.Error.
//
// Concurrent calls for the same handle key share one analysis. The shared work keeps
// running when a caller goes away, bounded by the analysis timeout; each caller
// stops waiting when its own ctx is done.
func (a *Analyzer) Analyze(ctx context.Context, handle string) (*Result, error) {
	key := models.HandleKey(handle)
	if key == "" {
		return nil, apperr.NewBadRequest("Twitter handle is required.")
	}

	ctx, span := a.tracer.Start(ctx, "situation.analyze", trace.WithAttributes(attribute.String("handle", key)))
	defer span.End()

	flightCtx := context.WithoutCancel(ctx)
	ch := a.inflight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flightCtx, a.timeout)
		defer cancel()
		return a.analyze(fctx, key, lookupName(handle))
	})

	select {
	case <-ctx.Done():
		a.logger.Info("situation_caller_gone", zap.String("handle", logpkg.SanitizeHandle(key)))
		return nil, a.fail(span, fmt.Errorf("caller_wait: %w", ctx.Err()))
	case r := <-ch:
		if r.Err != nil {
			return nil, a.fail(span, r.Err)
		}
		res := *r.Val.(*Result)
		res.Handle = handle
		span.SetAttributes(attribute.Bool("cache_hit", res.Cached), attribute.Bool("coalesced", r.Shared))
		return &res, nil
	}
}

func (a *Analyzer) fail(span trace.Span, err error) *apperr.Error {
	appErr := apperr.Classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(appErr.Kind))
	return appErr
}

func (a *Analyzer) analyze(ctx context.Context, key, name string) (*Result, error) {
	cutoff := a.now().Add(-a.ttl)
	cached, err := a.store.GetFresh(ctx, key, cutoff)
	if err != nil {
		return nil, a.unclassified(key, "cache_lookup", err)
	}
	if cached != nil {
		a.logger.Info("situation_cache_hit", zap.String("handle", logpkg.SanitizeHandle(key)))
		return &Result{
			Situation:             cached.Situation,
			ProfileImageURL:       cached.ProfileImageURL,
			RepresentativePostURL: cached.RepresentativePostURL,
			Cached:                true,
		}, nil
	}
	a.logger.Info("situation_cache_miss", zap.String("handle", logpkg.SanitizeHandle(key)))

	profile, err := a.source.UserDetails(ctx, name)
	if err != nil {
		return nil, a.unclassified(key, "user_details", err)
	}
	if profile == nil || profile.ID == "" {
		return nil, apperr.NewNotFound(fmt.Sprintf("User with handle @%s not found.", name))
	}

	posts, err := a.source.UserTimeline(ctx, profile.ID)
	if err != nil {
		return nil, a.unclassified(key, "user_timeline", err)
	}
	if len(posts) == 0 {
		return nil, apperr.NewNotFound(fmt.Sprintf("No tweets found for @%s.", name))
	}

	details, err := FormatUserDetails(profile)
	if err != nil {
		return nil, a.unclassified(key, "format_prompt", err)
	}
	userName := profile.UserName
	if userName == "" {
		userName = name
	}

	report, err := a.provider.ReportSituation(ctx, ai.SituationPrompt{
		UserDetails: details,
		Posts:       FormatPosts(userName, posts),
	})
	if errors.Is(err, ai.ErrNoToolCall) {
		a.logger.Warn("situation_analysis_failed", zap.String("handle", logpkg.SanitizeHandle(key)))
		return nil, apperr.NewAnalysisFailed(err)
	}
	if err != nil {
		return nil, a.unclassified(key, "report_situation", err)
	}

	row := &models.UserAnalysis{
		Handle:                key,
		Situation:             NormalizeSituation(report.Situation),
		ProfileImageURL:       profile.ProfileImage,
		RepresentativePostURL: strings.TrimSpace(report.RepresentativeTweetURL),
		UpdatedAt:             a.now(),
	}
	if err := a.store.Upsert(ctx, row); err != nil {
		return nil, a.unclassified(key, "store_upsert", err)
	}

	a.logger.Info("situation_analysis_complete",
		zap.String("handle", logpkg.SanitizeHandle(key)),
		zap.String("situation", logpkg.SanitizeString(row.Situation, 200)),
		zap.Int("post_count", len(posts)),
	)

	return &Result{
		Situation:             row.Situation,
		ProfileImageURL:       row.ProfileImageURL,
		RepresentativePostURL: row.RepresentativePostURL,
	}, nil
}

func (a *Analyzer) unclassified(key, stage string, err error) error {
	a.logger.Error("situation_analysis_error",
		zap.String("handle", logpkg.SanitizeHandle(key)),
		zap.String("stage", stage),
		zap.String("error", logpkg.SanitizeError(err)),
	)
	return apperr.NewUnclassified(fmt.Errorf("%s: %w", stage, err))
}

// lookupName is the handle as sent to the social network: trimmed and without '@', case preserved.
func lookupName(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}
