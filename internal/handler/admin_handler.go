package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Admin: account status
// ============================================================

func setStatusHandler(svc StatusAdmin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/accounts/{accountId}/status")
		defer span.End()

		accountID, err := accountIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var upd domain.StatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		acc, err := svc.SetStatus(ctx, accountID, upd)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("account status set",
			zap.Int64("account_id", accountID),
			zap.String("status", string(acc.Status)),
			zap.String("admin", AdminSubjectFromContext(ctx)),
		)
		writeJSON(w, http.StatusOK, acc)
	}
}

type reservationCreatedResponse struct {
	Account       *domain.Account `json:"account"`
	StatusChanged bool            `json:"statusChanged"`
}

func reservationCreatedHandler(svc StatusAdmin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/accounts/{accountId}/reservation-created")
		defer span.End()

		accountID, err := accountIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		acc, changed, err := svc.RecordReservationCreated(ctx, accountID)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Bool("status.changed", changed))

		writeJSON(w, http.StatusOK, reservationCreatedResponse{Account: acc, StatusChanged: changed})
	}
}

// ============================================================
// Admin: reconciliation
// ============================================================

type reconcileEnqueuedResponse struct {
	TaskID string `json:"taskId"`
}

// reconcileHandler enqueues a run on the worker when one is configured and
// runs it inline otherwise. ?wait=true forces the inline run.
func reconcileHandler(reconciler Reconciler, enqueuer port.ReconcileEnqueuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/reconcile")
		defer span.End()

		wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
		requestedBy := AdminSubjectFromContext(ctx)

		if enqueuer != nil && (!wait || reconciler == nil) {
			taskID, err := enqueuer.EnqueueReconcile(ctx, requestedBy)
			if err != nil {
				span.RecordError(err)
				handleServiceError(w, err, logger)
				return
			}
			logger.Info("reconcile enqueued", zap.String("task_id", taskID), zap.String("admin", requestedBy))
			writeJSON(w, http.StatusAccepted, reconcileEnqueuedResponse{TaskID: taskID})
			return
		}

		report, err := reconciler.Reconcile(ctx)
		if err != nil {
			span.RecordError(err)
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("reconcile.run_id", report.RunID),
			attribute.Int("reconcile.healed", len(report.Healed)),
		)
		writeJSON(w, http.StatusOK, report)
	}
}
