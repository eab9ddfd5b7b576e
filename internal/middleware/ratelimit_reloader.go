package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/request"
)

const rateLimitedMessage = "Too many situations assessed from this address. Try again shortly."

// RateLimitReloader limits requests per client IP at the rate stored in
// api_settings. The limiter is rebuilt only when that rate changes.
type RateLimitReloader struct {
	hotSwap
	store       limiter.Store
	source      database.RateLimitSource
	defaultRate string
	log         *zap.Logger
	applied     string
}

// NewRateLimitReloader creates a rate limit middleware over store that polls
// source every reloadInterval.
func NewRateLimitReloader(store limiter.Store, source database.RateLimitSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = DefaultRate
	}
	return &RateLimitReloader{
		hotSwap:     hotSwap{interval: reloadInterval},
		store:       store,
		source:      source,
		defaultRate: defaultRate,
		log:         log,
	}
}

// Middleware wraps next with the current limiter.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return r.attach(r.reload)
}

// Start polls for rate changes until ctx is cancelled. Call after Middleware.
func (r *RateLimitReloader) Start(ctx context.Context) {
	r.poll(ctx, r.reload)
}

// storedRate returns the configured rate, seeding the default into an empty store.
func (r *RateLimitReloader) storedRate(ctx context.Context) string {
	rl, err := r.source.RateLimit(ctx)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_rate_limit_using_default",
			zap.Error(err),
			zap.String("default_rate", r.defaultRate),
		)
	case rl != nil && rl.Rate != "":
		return rl.Rate
	default:
		if err := r.source.SetRateLimit(ctx, r.defaultRate); err != nil {
			r.log.Error("failed_to_seed_default_rate_limit", zap.Error(err))
		}
	}
	return r.defaultRate
}

func (r *RateLimitReloader) reload(ctx context.Context) {
	if r.next == nil {
		return
	}
	formatted := r.storedRate(ctx)
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		r.log.Error("invalid_stored_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate", formatted),
		)
		formatted = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(formatted); err != nil {
			r.log.Error("invalid_default_rate_limit", zap.Error(err), zap.String("rate", formatted))
			return
		}
	}
	if formatted == r.applied {
		return
	}

	mw := stdlibmw.NewMiddleware(limiter.New(r.store, rate),
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, req *http.Request) {
			writeError(w, req, http.StatusTooManyRequests, KindRateLimited, rateLimitedMessage)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
			// fail open
			r.log.Error("rate_limit_store_error", zap.Error(err))
			r.next.ServeHTTP(w, req)
		}),
	)
	r.install(mw.Handler(r.next))
	r.applied = formatted
	r.log.Info("rate_limit_applied", zap.String("rate", formatted))
}
