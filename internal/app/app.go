// Package app assembles the components shared by the server, worker and CLI
// from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/config"
	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/middleware"
	"github.com/benvon/situation-monitor/internal/services/ai"
	"github.com/benvon/situation-monitor/internal/services/situation"
	"github.com/benvon/situation-monitor/internal/services/social"
)

// Version is set at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// DefaultConnectTimeout bounds startup retries against backing services.
const DefaultConnectTimeout = 2 * time.Minute

// retry runs op with exponential backoff until it succeeds, ctx ends or
// maxElapsed passes. Each failure is logged under event.
func retry(ctx context.Context, maxElapsed time.Duration, log *zap.Logger, event string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = maxElapsed

	notify := func(err error, delay time.Duration) {
		log.Warn(event, zap.Error(err), zap.Duration("retry_delay", delay))
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// OpenDatabase opens and migrates the database, retrying while it starts up.
func OpenDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*database.DB, error) {
	var db *database.DB
	err := retry(ctx, DefaultConnectTimeout, log, "failed_to_connect_to_database_retrying", func() error {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// ConnectRedis connects to REDIS_URL. It returns a nil client when Redis is
// not configured.
func ConnectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	var client *redis.Client
	err := retry(ctx, DefaultConnectTimeout, log, "failed_to_connect_to_redis_retrying", func() error {
		var err error
		client, err = middleware.NewRedisClient(ctx, cfg.RedisURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewProvider creates the configured model provider.
func NewProvider(cfg *config.Config, log *zap.Logger, debugMode bool) (ai.SituationProvider, error) {
	provider, err := ai.DefaultRegistry().GetProvider(cfg.AIProvider, ai.ProviderOptions{
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.AIModel,
		Logger:    log,
		DebugMode: debugMode,
	})
	if err != nil {
		return nil, err
	}
	log.Info("ai_provider_configured",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", cfg.AIModel),
		zap.String("api_key", ai.KeyFingerprint(cfg.OpenAIKey)),
	)
	return provider, nil
}

// NewAnalyzer wires the situation analyzer over db, the X client and the model provider.
func NewAnalyzer(cfg *config.Config, db *database.DB, log *zap.Logger, debugMode bool) (*situation.Analyzer, error) {
	source, err := social.NewXClient(cfg.SocialBaseURL, cfg.SocialBearer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create social client: %w", err)
	}
	provider, err := NewProvider(cfg, log, debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	return situation.NewAnalyzer(
		database.NewUserAnalysisRepository(db),
		source,
		provider,
		log,
		situation.WithTTL(cfg.CacheTTL),
	), nil
}
