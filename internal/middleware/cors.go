package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/models"
	"github.com/benvon/situation-monitor/internal/request"
)

const (
	defaultCORSOrigin = "http://localhost:3000"
	defaultCORSMaxAge = 86400
)

// CORSReloader applies the CORS policy stored in api_settings, falling back to
// FRONTEND_URL when none is stored or the store is unreachable.
type CORSReloader struct {
	hotSwap
	source   database.CORSPolicySource
	fallback []string
	log      *zap.Logger
	applied  *models.CORSPolicy
}

// NewCORSReloader creates a CORS middleware that polls source every reloadInterval.
func NewCORSReloader(source database.CORSPolicySource, frontendURL string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	return &CORSReloader{
		hotSwap:  hotSwap{interval: reloadInterval},
		source:   source,
		fallback: database.ParseOrigins(frontendURL),
		log:      log,
	}
}

// Middleware wraps next with the current policy.
func (c *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return c.attach(c.reload)
}

// Start polls for policy changes until ctx is cancelled. Call after Middleware.
func (c *CORSReloader) Start(ctx context.Context) {
	c.poll(ctx, c.reload)
}

// effectivePolicy resolves what to enforce from the stored policy, if any.
func (c *CORSReloader) effectivePolicy(stored *models.CORSPolicy) models.CORSPolicy {
	if stored != nil && len(stored.AllowedOrigins) > 0 {
		return *stored
	}
	origins := c.fallback
	if len(origins) == 0 {
		origins = []string{defaultCORSOrigin}
	}
	return models.CORSPolicy{AllowedOrigins: origins, MaxAge: defaultCORSMaxAge}
}

func (c *CORSReloader) reload(ctx context.Context) {
	if c.next == nil {
		return
	}
	stored, err := c.source.CORSPolicy(ctx)
	if err != nil {
		c.log.Warn("failed_to_load_cors_policy_using_fallback", zap.Error(err))
		stored = nil
	}
	policy := c.effectivePolicy(stored)
	if c.applied != nil && samePolicy(*c.applied, policy) {
		return
	}

	c.install(cors.New(corsOptions(policy)).Handler(c.next))
	c.applied = &policy
	c.log.Info("cors_policy_applied",
		zap.String("origins", strings.Join(policy.AllowedOrigins, ",")),
		zap.Bool("from_settings", stored != nil),
	)
}

func corsOptions(p models.CORSPolicy) cors.Options {
	return cors.Options{
		AllowedOrigins:   p.AllowedOrigins,
		AllowCredentials: p.AllowCredentials,
		MaxAge:           p.MaxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", request.RequestIDHeader},
		// the browser reads the export filename and the remaining budget
		ExposedHeaders: []string{request.RequestIDHeader, "Content-Disposition", "X-RateLimit-Remaining"},
	}
}

func samePolicy(a, b models.CORSPolicy) bool {
	return slices.Equal(a.AllowedOrigins, b.AllowedOrigins) &&
		a.AllowCredentials == b.AllowCredentials &&
		a.MaxAge == b.MaxAge
}
