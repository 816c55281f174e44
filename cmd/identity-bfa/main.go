package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/app"
	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/handler"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/scheduler"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "identity-bfa")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store", cfg.Store),
		zap.String("phone_region", cfg.PhoneRegion),
		zap.Duration("source_timeout", cfg.SourceTimeout),
		zap.Int("fanout_limit", cfg.FanOutLimit),
		zap.Duration("trial_window", cfg.TrialWindow),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("admin_enabled", cfg.AdminJWTSecret != ""),
		zap.Bool("worker_queue_enabled", cfg.RedisURL != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "identity-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Services ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := app.New(startCtx, cfg, metrics, logger)
	cancelStart()
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer services.Close()

	routes := handler.Services{
		Customers:   services.Customers,
		Status:      services.Status,
		Reconciler:  services.Reconciler,
		Store:       services.Store,
		AdminSecret: cfg.AdminJWTSecret,
	}

	// Reconcile requests go to the worker when Redis is configured.
	if cfg.RedisURL != "" {
		queue, err := scheduler.NewClient(cfg)
		if err != nil {
			logger.Fatal("failed to create task client", zap.Error(err))
		}
		defer queue.Close()
		routes.Enqueuer = queue
		logger.Info("reconcile requests will be enqueued", zap.String("queue", cfg.AsynqQueue))
	} else {
		logger.Warn("REDIS_URL not set, reconcile requests run inline")
	}

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(routes, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
