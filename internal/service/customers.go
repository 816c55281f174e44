package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/identity")

// CustomerService serves resolveCustomer and listCustomers. Both paths are
// read-only: status corrections are left to the Reconciler.
type CustomerService struct {
	accounts    port.AccountReader
	linker      *Linker
	loader      *EvidenceLoader
	phones      port.PhoneNormalizer
	trialWindow time.Duration
	now         func() time.Time
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewCustomerService creates the read service with all dependencies injected.
func NewCustomerService(
	accounts port.AccountReader,
	linker *Linker,
	loader *EvidenceLoader,
	phones port.PhoneNormalizer,
	trialWindow time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		accounts:    accounts,
		linker:      linker,
		loader:      loader,
		phones:      phones,
		trialWindow: trialWindow,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *CustomerService) WithClock(now func() time.Time) *CustomerService {
	s.now = now
	return s
}

// ResolveCustomer returns the evaluated customer backing accountID.
// Per-source failures degrade the result; only the account lookup is fatal.
func (s *CustomerService) ResolveCustomer(ctx context.Context, accountID int64) (*domain.ResolvedCustomer, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "CustomerService.ResolveCustomer")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", accountID))

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		s.metrics.IncrSourceError(SourceAccounts)
		return nil, &domain.ErrUpstreamUnavailable{Source: SourceAccounts, Err: err}
	}

	customer, linkDegraded := s.linker.Link(ctx, *account)
	ev, degraded := s.loader.LoadForCustomer(ctx, &customer)
	if linkDegraded {
		degraded = append([]string{SourceLinking}, degraded...)
		sort.Strings(degraded)
	}

	out := &domain.ResolvedCustomer{
		CustomerView:    Evaluate(&customer, &ev, s.now(), s.trialWindow),
		Partial:         len(degraded) > 0,
		DegradedSources: degraded,
	}
	if out.Partial {
		s.metrics.IncrPartial("resolve")
	}
	s.metrics.RecordRequestDuration("resolve", time.Since(start))

	s.logger.Debug("customer resolved",
		zap.Int64("account_id", accountID),
		zap.String("key", out.Identity.Key),
		zap.String("group", string(out.LifecycleGroup)),
		zap.Bool("partial", out.Partial),
	)
	return out, nil
}

// ListCustomers evaluates the whole population from one snapshot, counts
// groups over all of it, then filters, sorts and paginates.
func (s *CustomerService) ListCustomers(ctx context.Context, f domain.ListFilter) (*domain.CustomerPage, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "CustomerService.ListCustomers")
	defer span.End()

	snap, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	views := s.evaluateAll(snap)
	counts := CountGroups(views)
	s.metrics.SetGroupCounts(counts)

	matched := make([]domain.CustomerView, 0, len(views))
	for i := range views {
		if MatchesGroup(&views[i], f.Group) && MatchesFilter(&views[i], f) {
			matched = append(matched, views[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].Identity, matched[j].Identity
		if !a.LastModifiedAt.Equal(b.LastModifiedAt) {
			return a.LastModifiedAt.After(b.LastModifiedAt)
		}
		return a.Key < b.Key
	})

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	lo := (page - 1) * size
	if lo > len(matched) {
		lo = len(matched)
	}
	hi := lo + size
	if hi > len(matched) {
		hi = len(matched)
	}

	out := &domain.CustomerPage{
		Items:           matched[lo:hi],
		Pagination:      domain.Pagination{Total: len(matched), Page: page, PageSize: size},
		GroupCounts:     counts,
		Partial:         len(snap.Degraded) > 0,
		DegradedSources: snap.Degraded,
	}
	if out.Partial {
		s.metrics.IncrPartial("list")
	}
	s.metrics.RecordRequestDuration("list", time.Since(start))

	s.logger.Info("customers listed",
		zap.Int("population", counts.All),
		zap.Int("matched", len(matched)),
		zap.Strings("degraded", snap.Degraded),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}

func (s *CustomerService) evaluateAll(snap *Snapshot) []domain.CustomerView {
	customers, ambiguous := LinkBatch(snap.Accounts, s.phones)
	for i := 0; i < ambiguous; i++ {
		s.metrics.IncrAmbiguousMatch()
	}
	if ambiguous > 0 {
		s.logger.Warn("ambiguous phone matches in batch link", zap.Int("count", ambiguous))
	}

	ix := newEvidenceIndex(snap, s.phones)
	now := s.now()
	views := make([]domain.CustomerView, len(customers))
	for i := range customers {
		ev := ix.evidenceFor(&customers[i])
		views[i] = Evaluate(&customers[i], &ev, now, s.trialWindow)
	}
	return views
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
