package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/app"
	"github.com/benvon/situation-monitor/internal/config"
	"github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/queue"
	"github.com/benvon/situation-monitor/internal/telemetry"
	"github.com/benvon/situation-monitor/internal/workers"
)

const (
	dlqInterval  = time.Hour
	dlqRetention = 7 * 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("worker", app.Version, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if !cfg.WarmupEnabled() {
		zapLogger.Fatal("rabbitmq_url_not_configured")
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, stopTracing := telemetry.Start(ctx, cfg.OTELEnabled, telemetry.Options{
		Component: "worker",
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

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, app.DefaultConnectTimeout, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	analyzer, err := app.NewAnalyzer(cfg, db, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_analyzer", zap.Error(err))
	}

	dlqGC := queue.NewGarbageCollector("dlq", jobQueue, dlqInterval, dlqRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	workers.NewWarmer(analyzer, jobQueue, zapLogger).Run(ctx, msgChan, errChan)

	zapLogger.Info("worker_stopped")
}
