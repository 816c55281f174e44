// Package scheduler runs auto-heal reconciliation in the background on
// asynq: an HTTP-side client that enqueues runs, and a worker that executes
// them and registers the periodic cron entry.
package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/domain"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// uniqueWindow keeps at most one queued reconcile run at a time.
const uniqueWindow = 10 * time.Minute

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueReconcile queues a reconcile run and returns the task id. A run
// already waiting in the queue yields *domain.ErrConflict.
func (c *Client) EnqueueReconcile(ctx context.Context, requestedBy string) (string, error) {
	task, err := NewReconcileTask(ReconcilePayload{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.Unique(uniqueWindow),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", &domain.ErrConflict{Message: "a reconcile run is already queued"}
	}
	if err != nil {
		return "", &domain.ErrExternalService{Service: "asynq", Err: err}
	}
	return info.ID, nil
}

func queueName(cfg *config.Config) string {
	if cfg.AsynqQueue == "" {
		return "default"
	}
	return cfg.AsynqQueue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
