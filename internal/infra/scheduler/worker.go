package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/domain"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Reconciler is the job the worker runs.
type Reconciler interface {
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	log       *zap.Logger
}

func NewWorker(cfg *config.Config, reconciler Reconciler, log *zap.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queue := queueName(cfg)
	concurrency := cfg.AsynqConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskReconcileAutoHeal, NewReconcileHandler(reconciler, log))

	w := &Worker{server: server, mux: mux, log: log}

	if cfg.ReconcileCron != "" {
		w.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
		task, err := NewReconcileTask(ReconcilePayload{RequestedBy: "scheduler"})
		if err != nil {
			return nil, err
		}
		entryID, err := w.scheduler.Register(cfg.ReconcileCron, task, asynq.Queue(queue), asynq.Unique(uniqueWindow))
		if err != nil {
			return nil, fmt.Errorf("register reconcile cron %q: %w", cfg.ReconcileCron, err)
		}
		log.Info("reconcile cron registered", zap.String("spec", cfg.ReconcileCron), zap.String("entry_id", entryID))
	}

	return w, nil
}

// NewReconcileHandler runs one reconciliation per task. Store failures are
// returned so asynq retries; malformed payloads are not retried.
func NewReconcileHandler(reconciler Reconciler, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseReconcilePayload(task)
		if err != nil {
			return fmt.Errorf("%w: decode reconcile payload: %v", asynq.SkipRetry, err)
		}

		report, err := reconciler.Reconcile(ctx)
		if err != nil {
			log.Warn("reconcile run failed", zap.String("requested_by", payload.RequestedBy), zap.Error(err))
			return err
		}

		log.Info("reconcile run completed",
			zap.String("run_id", report.RunID),
			zap.String("requested_by", payload.RequestedBy),
			zap.Int("healed", len(report.Healed)),
			zap.Int("failed", report.Failed),
		)
		return nil
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.log.Error("reconcile scheduler failed to start", zap.Error(err))
		} else {
			defer w.scheduler.Shutdown()
		}
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("reconcile worker stopped", zap.Error(err))
	}
}
