package handler

import (
	"net/http"

	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Customers
// ============================================================

func resolveCustomerHandler(svc CustomerReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{accountId}")
		defer span.End()

		accountID, err := accountIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("account.id", accountID))

		result, err := svc.ResolveCustomer(ctx, accountID)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func listCustomersHandler(svc CustomerReader, parser *service.FilterParser, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers")
		defer span.End()

		filter, ignored := parser.Parse(r.URL.Query())
		if len(ignored) > 0 {
			fields := service.IgnoredFields(ignored)
			logger.Info("ignoring invalid list filters", zap.Strings("fields", fields))
		}

		page, err := svc.ListCustomers(ctx, filter)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}
		page.IgnoredFilters = service.IgnoredFields(ignored)
		span.SetAttributes(
			attribute.Int("customers.total", page.Pagination.Total),
			attribute.Bool("customers.partial", page.Partial),
		)

		writeJSON(w, http.StatusOK, page)
	}
}
