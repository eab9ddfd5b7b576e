package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL       string
	ServerPort        string
	FrontendURL       string
	OpenAIKey         string
	AIProvider        string
	AIModel           string
	AIBaseURL         string
	EnableHSTS        bool
	RedisURL          string
	RabbitMQURL       string
	RabbitMQPrefetch  int
	SocialBaseURL     string
	SocialBearer      string
	CacheTTL          time.Duration
	AnalysisRetention time.Duration
	// TemplateAssetsDir holds the five template images; see assets/templates/README.md.
	TemplateAssetsDir string
	SiteLabel         string
	WorkerDebugMode   bool
	ServerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
}

// Load reads configuration from environment variables. Malformed values are
// errors rather than silent fallbacks to defaults; all of them are reported.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		DatabaseURL:       env.str("DATABASE_URL", ""),
		ServerPort:        env.str("SERVER_PORT", "8080"),
		FrontendURL:       env.str("FRONTEND_URL", "http://localhost:3000"),
		OpenAIKey:         env.str("OPENAI_API_KEY", ""),
		AIProvider:        env.str("AI_PROVIDER", "openai"),
		AIModel:           env.str("AI_MODEL", ""),
		AIBaseURL:         env.str("AI_BASE_URL", ""),
		EnableHSTS:        env.boolean("ENABLE_HSTS", false),
		RedisURL:          env.str("REDIS_URL", ""),
		RabbitMQURL:       env.str("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  env.integer("RABBITMQ_PREFETCH", 1),
		SocialBaseURL:     env.str("SOCIAL_BASE_URL", "https://api.x.com"),
		SocialBearer:      env.str("SOCIAL_BEARER_TOKEN", ""),
		CacheTTL:          env.duration("CACHE_TTL", 24*time.Hour),
		AnalysisRetention: env.duration("ANALYSIS_RETENTION", 30*24*time.Hour),
		TemplateAssetsDir: env.str("TEMPLATE_ASSETS_DIR", "assets/templates"),
		SiteLabel:         env.str("SITE_LABEL", "situationmonitor.app"),
		WorkerDebugMode:   env.boolean("WORKER_DEBUG_MODE", false),
		ServerDebugMode:   env.boolean("SERVER_DEBUG_MODE", false),
		OTELEnabled:       env.boolean("OTEL_ENABLED", false),
		OTELEndpoint:      env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	// purging a still-fresh row would shorten the cache window
	if c.AnalysisRetention < c.CacheTTL {
		return fmt.Errorf("ANALYSIS_RETENTION (%s) must not be shorter than CACHE_TTL (%s)", c.AnalysisRetention, c.CacheTTL)
	}
	if c.RabbitMQPrefetch < 1 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be at least 1, got %d", c.RabbitMQPrefetch)
	}
	if c.OTELEnabled && c.OTELEndpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is set")
	}
	return nil
}

// WarmupEnabled reports whether the RabbitMQ-backed cache warm-up path is configured.
func (c *Config) WarmupEnabled() bool {
	return c.RabbitMQURL != ""
}

// envReader reads typed variables and collects the ones that fail to parse.
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.ToLower(e.str(key, ""))
	switch v {
	case "":
		return def
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration (e.g. 24h, 90m)", key, v))
		return def
	}
	return d
}
