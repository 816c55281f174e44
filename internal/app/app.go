// Package app wires the identity engine from configuration. The HTTP server,
// the background worker and the CLI all build their services here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/cache"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/memstore"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/phone"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/postgres"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/resilience"
	"github.com/boddenberg/customer-identity-bfa/internal/port"
	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"go.uber.org/zap"
)

// App holds the wired services.
type App struct {
	Store      port.EvidenceStore
	Customers  *service.CustomerService
	Status     *service.StatusService
	Reconciler *service.Reconciler

	closers []func()
}

// New opens the configured evidence store and builds the services on top of it.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*App, error) {
	phones := phone.NewNormalizer(cfg.PhoneRegion)
	a := &App{}

	store, err := a.openStore(ctx, cfg, phones, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	profiles := cache.New[[]domain.AffiliateProfile](cfg.CacheTTL)
	a.closers = append(a.closers, profiles.Close)

	loader := service.NewEvidenceLoader(store, profiles, phones, cfg.FanOutLimit, cfg.SourceTimeout, metrics, logger)
	linker := service.NewLinker(store, phones, metrics, logger)

	a.Customers = service.NewCustomerService(store, linker, loader, phones, cfg.TrialWindow, metrics, logger)
	a.Status = service.NewStatusService(store, store, logger)
	a.Reconciler = service.NewReconciler(store, loader, phones, cfg.ReconcileWritesPerSec, cfg.ReconcileBatchLimit, metrics, logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, phones port.PhoneNormalizer, logger *zap.Logger) (port.EvidenceStore, error) {
	if cfg.UseMemoryStore() {
		if cfg.FixturesPath == "" {
			logger.Warn("memory store without fixtures, starting empty")
			return memstore.New(phones), nil
		}
		store, err := memstore.LoadFile(cfg.FixturesPath, phones)
		if err != nil {
			return nil, fmt.Errorf("load fixtures %s: %w", cfg.FixturesPath, err)
		}
		logger.Info("using in-memory evidence store", zap.String("fixtures", cfg.FixturesPath))
		return store, nil
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when STORE=postgres")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.MaxConcurrency))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	guard := resilience.NewGuard("evidence-store", resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	logger.Info("using postgres evidence store")
	return postgres.NewStore(pool, guard, logger), nil
}

// Close releases the store and caches.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
