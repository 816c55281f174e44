package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/port"
	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// CustomerReader serves the read operations.
type CustomerReader interface {
	ResolveCustomer(ctx context.Context, accountID int64) (*domain.ResolvedCustomer, error)
	ListCustomers(ctx context.Context, f domain.ListFilter) (*domain.CustomerPage, error)
}

// StatusAdmin serves the explicit status writes.
type StatusAdmin interface {
	SetStatus(ctx context.Context, accountID int64, upd domain.StatusUpdate) (*domain.Account, error)
	RecordReservationCreated(ctx context.Context, accountID int64) (*domain.Account, bool, error)
}

// Reconciler runs an auto-heal pass inline.
type Reconciler interface {
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}

// Pinger reports evidence store reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the router's dependencies. Nil members disable their routes.
type Services struct {
	Customers  CustomerReader
	Status     StatusAdmin
	Reconciler Reconciler
	// Enqueuer hands reconcile runs to the background worker. Without it
	// reconcile requests run inline.
	Enqueuer port.ReconcileEnqueuer
	Store    Pinger
	// AdminSecret signs admin tokens. Admin routes are not mounted without it.
	AdminSecret string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc.Customers != nil {
			parser := service.NewFilterParser()
			r.Get("/customers", listCustomersHandler(svc.Customers, parser, logger))
			r.Get("/customers/{accountId}", resolveCustomerHandler(svc.Customers, logger))
		}

		if svc.AdminSecret != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminJWTMiddleware([]byte(svc.AdminSecret), logger))
				if svc.Status != nil {
					r.Put("/accounts/{accountId}/status", setStatusHandler(svc.Status, logger))
					r.Post("/accounts/{accountId}/reservation-created", reservationCreatedHandler(svc.Status, logger))
				}
				if svc.Reconciler != nil || svc.Enqueuer != nil {
					r.Post("/reconcile", reconcileHandler(svc.Reconciler, svc.Enqueuer, logger))
				}
			})
		}
	})

	return r
}

// ============================================================
// Health
// ============================================================

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "identity-bfa", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("evidence store ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "evidence-store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}
