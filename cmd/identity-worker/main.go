package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/app"
	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/scheduler"

	"go.uber.org/zap"
)

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel, "identity-worker")
	defer logger.Sync()

	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "identity-worker")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, 30*time.Second)
	services, err := app.New(startCtx, cfg, observability.NewMetrics(), logger)
	cancelStart()
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer services.Close()

	worker, err := scheduler.NewWorker(cfg, services.Reconciler, logger)
	if err != nil {
		logger.Fatal("failed to create worker", zap.Error(err))
	}

	logger.Info("reconcile worker starting",
		zap.String("queue", cfg.AsynqQueue),
		zap.Int("concurrency", cfg.AsynqConcurrency),
		zap.String("cron", cfg.ReconcileCron),
		zap.Float64("writes_per_sec", cfg.ReconcileWritesPerSec),
		zap.Int("batch_limit", cfg.ReconcileBatchLimit),
	)
	worker.Run(ctx)
	logger.Info("reconcile worker stopped")
}
