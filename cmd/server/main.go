package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/app"
	"github.com/benvon/situation-monitor/internal/composer"
	"github.com/benvon/situation-monitor/internal/config"
	"github.com/benvon/situation-monitor/internal/database"
	"github.com/benvon/situation-monitor/internal/handlers"
	"github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/middleware"
	"github.com/benvon/situation-monitor/internal/render"
	"github.com/benvon/situation-monitor/internal/telemetry"
	"github.com/benvon/situation-monitor/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("server", app.Version, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, stopTracing := telemetry.Start(ctx, cfg.OTELEnabled, telemetry.Options{
		Component: "server",
		Version:   app.Version,
		Endpoint:  cfg.OTELEndpoint,
	}, zapLogger)
	defer stopTracing()

	db, err := app.OpenDatabase(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database", zap.String("dialect", string(db.Dialect())))

	redisClient, err := app.ConnectRedis(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	var histories handlers.HistoryFactory
	var redisPinger handlers.Pinger
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
		histories = func(clientID string) composer.HistoryStore {
			return composer.NewRedisHistory(redisClient, clientID, composer.DefaultRedisHistoryTTL)
		}
		redisPinger = handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	} else {
		zapLogger.Warn("redis_not_configured_using_process_local_state")
		histories = composer.NewMemoryHistories().For
	}

	analyzer, err := app.NewAnalyzer(cfg, db, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_analyzer", zap.Error(err))
	}

	settingsRepo := database.NewSettingsRepository(db)
	analysisRepo := database.NewUserAnalysisRepository(db)

	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}

	renderer := render.New(render.Options{
		AssetsDir: cfg.TemplateAssetsDir,
		SiteLabel: cfg.SiteLabel,
		Logger:    zapLogger,
	})
	if err := renderer.Check(); err != nil {
		zapLogger.Warn("png_export_disabled",
			zap.String("assets_dir", cfg.TemplateAssetsDir),
			zap.Error(err),
		)
		renderer = nil
	}

	situationHandler := handlers.NewSituationHandler(analyzer, zapLogger)
	memeHandler := handlers.NewMemeHandler(analyzer, histories, renderer, zapLogger)
	healthChecker := handlers.NewHealthChecker(map[string]handlers.Pinger{
		"database": db,
		"redis":    redisPinger,
	})

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order; the first is outermost
	if tracing {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.RequestID)
	corsReloader := middleware.NewCORSReloader(settingsRepo, cfg.FrontendURL, zapLogger, time.Minute)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitReloader := middleware.NewRateLimitReloader(limiterStore, settingsRepo, middleware.DefaultRate, zapLogger, time.Minute)

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")
	openAPIHandler, err := handlers.NewOpenAPIHandler(app.Version)
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitReloader.Middleware())
	situationHandler.RegisterRoutes(apiRouter)
	memeHandler.RegisterRoutes(apiRouter)

	// preflights reach here only after the CORS middleware has answered them
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)

	janitor := workers.NewJanitor(analysisRepo, workers.DefaultJanitorInterval, cfg.AnalysisRetention, zapLogger)
	go func() {
		if err := janitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("analysis_janitor_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_analysis_janitor",
		zap.Duration("interval", workers.DefaultJanitorInterval),
		zap.Duration("retention", cfg.AnalysisRetention),
	)

	go func() {
		zapLogger.Info("server_listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":%q,"timestamp":"%s"}`, app.Version, time.Now().UTC().Format(time.RFC3339))
}
