package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AutoHealReason prefixes the status reason written by the reconciler.
const AutoHealReason = "auto-heal"

// Reconciler applies the auto-heal correction as explicit writes. Each write
// is a compare-and-set on the status observed in the snapshot, so running it
// twice, or concurrently with an admin write, converges to the same state.
type Reconciler struct {
	writer     port.AccountStatusWriter
	loader     *EvidenceLoader
	phones     port.PhoneNormalizer
	limiter    *rate.Limiter
	batchLimit int
	now        func() time.Time
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewReconciler(
	writer port.AccountStatusWriter,
	loader *EvidenceLoader,
	phones port.PhoneNormalizer,
	writesPerSec float64,
	batchLimit int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Reconciler {
	limit := rate.Inf
	if writesPerSec > 0 {
		limit = rate.Limit(writesPerSec)
	}
	return &Reconciler{
		writer:     writer,
		loader:     loader,
		phones:     phones,
		limiter:    rate.NewLimiter(limit, 1),
		batchLimit: batchLimit,
		now:        time.Now,
		metrics:    metrics,
		logger:     logger,
	}
}

// WithClock overrides the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

type healCandidate struct {
	guide       domain.Account
	marketplace domain.AccountRef
}

// Reconcile scans the population once and reactivates every dormant or
// locked guide account whose linked marketplace account has reservations.
func (r *Reconciler) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	report := &domain.ReconcileReport{RunID: uuid.NewString(), StartedAt: r.now(), Healed: []int64{}}
	span.SetAttributes(attribute.String("reconcile.run_id", report.RunID))
	log := r.logger.With(zap.String("run_id", report.RunID))

	snap, err := r.loader.LoadSnapshot(ctx)
	if err != nil {
		r.metrics.IncrReconcileRun("error")
		return nil, err
	}
	report.Scanned = len(snap.Accounts)
	report.DegradedSources = snap.Degraded
	report.Partial = len(snap.Degraded) > 0

	candidates := r.candidates(snap)
	report.Candidates = len(candidates)
	if r.batchLimit > 0 && len(candidates) > r.batchLimit {
		log.Info("reconcile batch truncated", zap.Int("candidates", len(candidates)), zap.Int("limit", r.batchLimit))
		candidates = candidates[:r.batchLimit]
		report.Partial = true
	}

	for _, c := range candidates {
		if err := r.limiter.Wait(ctx); err != nil {
			report.Failed += len(candidates) - len(report.Healed) - report.Skipped - report.Failed
			log.Warn("reconcile interrupted", zap.Error(err))
			break
		}
		at := r.now()
		change := domain.StatusChange{
			From:         []domain.AccountStatus{c.guide.Status},
			To:           domain.StatusActive,
			Reason:       fmt.Sprintf("%s: reservations on %s", AutoHealReason, c.marketplace),
			At:           at,
			LastActiveAt: &at,
		}
		applied, err := r.writer.UpdateAccountStatus(ctx, c.guide.ID, change)
		switch {
		case err != nil:
			report.Failed++
			log.Warn("auto-heal write failed", zap.Int64("account_id", c.guide.ID), zap.Error(err))
		case !applied:
			report.Skipped++
			log.Info("auto-heal skipped, status changed concurrently", zap.Int64("account_id", c.guide.ID))
		default:
			report.Healed = append(report.Healed, c.guide.ID)
		}
	}

	report.FinishedAt = r.now()
	r.metrics.AddHealed(len(report.Healed))
	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	r.metrics.IncrReconcileRun(result)

	log.Info("reconcile finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("candidates", report.Candidates),
		zap.Int("healed", len(report.Healed)),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Strings("degraded", report.DegradedSources),
	)
	return report, nil
}

func (r *Reconciler) candidates(snap *Snapshot) []healCandidate {
	reservations := make(map[int64]int, len(snap.Reservations))
	for _, res := range snap.Reservations {
		reservations[res.AccountID]++
	}

	customers, _ := LinkBatch(snap.Accounts, r.phones)
	var out []healCandidate
	for i := range customers {
		guide := customers[i].Account(domain.NamespaceGuide)
		mp := customers[i].Account(domain.NamespaceMarketplace)
		if guide == nil || mp == nil {
			continue
		}
		if NeedsHeal(*guide, reservations[mp.ID]) {
			out = append(out, healCandidate{guide: *guide, marketplace: mp.Ref()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guide.ID < out[j].guide.ID })
	return out
}
