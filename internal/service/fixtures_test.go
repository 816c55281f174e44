package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/cache"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/memstore"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/phone"
	"github.com/boddenberg/customer-identity-bfa/internal/port"
	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"go.uber.org/zap"
)

var (
	testNow  = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	errStore = errors.New("store unavailable")
)

func at(day int) time.Time {
	return time.Date(2024, 12, day, 9, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// scenarioStore holds one customer per lifecycle path:
//
//	1+2   guide dormant, linked by cross-reference to marketplace 2 with a reservation
//	3     guide with a lead assigned to agent 7 (supervised by manager 9)
//	4     guide with a reservation and a refund
//	5     guide with a manager lead and a landing-page registration shared by manager 11
//	6     marketplace self-signup
//	8     guide on trial
//	10    guide with no evidence
func scenarioStore() *memstore.Store {
	s := memstore.New(phone.NewNormalizer("KR"))

	s.PutAccount(domain.Account{ID: 1, Namespace: domain.NamespaceGuide, Name: "Kim Minji", Phone: "010-1111-1111",
		CrossRef: "marketplace:2", Source: domain.SourceSignup, Status: domain.StatusDormant,
		CreatedAt: at(1), UpdatedAt: at(1)})
	s.PutAccount(domain.Account{ID: 2, Namespace: domain.NamespaceMarketplace, Name: "minji", Phone: "01011111111",
		Email: "minji@example.com", Source: domain.SourceMarketplaceSignup, CreatedAt: at(2), UpdatedAt: at(20)})
	s.AddReservation(domain.Reservation{ID: 100, AccountID: 2, AmountMinor: 450000, CreatedAt: at(15),
		Travelers: []domain.Traveler{{Name: "Kim Minji"}}})

	s.PutAccount(domain.Account{ID: 3, Namespace: domain.NamespaceGuide, Name: "Lee Jun", Phone: "010-2222-2222",
		Source: domain.SourceSignup, Status: domain.StatusActive, CreatedAt: at(3), UpdatedAt: at(3)})
	s.AddLead(domain.Lead{ID: 500, Phone: "+82 10-2222-2222", AssignedAgentID: ptr(int64(7)),
		Status: domain.LeadContacted, CreatedAt: at(2)})

	s.PutAccount(domain.Account{ID: 4, Namespace: domain.NamespaceGuide, Name: "Park Sora", Phone: "010-4444-4444",
		Source: domain.SourceSignup, Status: domain.StatusActive, Refunded: true, CreatedAt: at(4), UpdatedAt: at(18)})
	s.AddReservation(domain.Reservation{ID: 101, AccountID: 4, AmountMinor: 300000, CreatedAt: at(5)})
	s.AddRefund(domain.RefundRecord{AccountID: 4, AmountMinor: 300000, RefundedAt: at(6)})

	s.PutAccount(domain.Account{ID: 5, Namespace: domain.NamespaceGuide, Name: "Choi Yuna", Phone: "010-5555-5555",
		Source: domain.SourceLandingPage, Status: domain.StatusActive, CreatedAt: at(5), UpdatedAt: at(5)})
	s.AddLead(domain.Lead{ID: 501, Phone: "010-5555-5555", AssignedManagerID: ptr(int64(9)),
		Status: domain.LeadNew, CreatedAt: at(4)})
	s.AddShare(domain.LandingPageShare{LandingPageID: 70, ManagerID: 11})
	s.AddRegistration(domain.FunnelRegistration{ID: 600, Phone: "010-5555-5555", LandingPageID: 70,
		AccountID: ptr(int64(5)), CreatedAt: at(5)})

	s.PutAccount(domain.Account{ID: 6, Namespace: domain.NamespaceMarketplace, Name: "Jung Hana", Phone: "010-6666-6666",
		Source: domain.SourceMarketplaceSignup, CreatedAt: at(6), UpdatedAt: at(6)})

	s.PutAccount(domain.Account{ID: 8, Namespace: domain.NamespaceGuide, Name: "Kang Dae", Phone: "010-8888-8888",
		Source: domain.SourceSignup, Status: domain.StatusTest, TrialStartedAt: ptr(testNow.Add(-24 * time.Hour)),
		CreatedAt: at(8), UpdatedAt: at(8)})

	s.PutAccount(domain.Account{ID: 10, Namespace: domain.NamespaceGuide, Name: "Yoon Bo", Phone: "010-1000-1000",
		Source: domain.SourceLandingPage, Status: domain.StatusActive, CreatedAt: at(10), UpdatedAt: at(10)})

	s.PutProfile(domain.AffiliateProfile{ID: 7, Role: domain.RoleAgent, DisplayName: "Agent Seven", Branch: "Gangnam"})
	s.PutProfile(domain.AffiliateProfile{ID: 9, Role: domain.RoleManager, DisplayName: "Manager Nine", Branch: "Gangnam"})
	s.PutProfile(domain.AffiliateProfile{ID: 11, Role: domain.RoleManager, DisplayName: "Manager Eleven", Branch: "Busan"})
	s.AddRelation(domain.AffiliateRelation{ManagerID: 9, AgentID: 7, Status: "active"})
	return s
}

// failingStore wraps a memstore and fails selected sources.
type failingStore struct {
	*memstore.Store
	accounts bool
	leads    bool
	writes   bool
	// stallLeads makes lead lookups hang until the caller's context ends.
	stallLeads bool
}

func (f *failingStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if f.accounts {
		return nil, errStore
	}
	return f.Store.GetAccount(ctx, id)
}

func (f *failingStore) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	if f.accounts {
		return nil, errStore
	}
	return f.Store.ListAccounts(ctx)
}

func (f *failingStore) FindLeadsByPhone(ctx context.Context, p string) ([]domain.Lead, error) {
	if f.stallLeads {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.leads {
		return nil, errStore
	}
	return f.Store.FindLeadsByPhone(ctx, p)
}

func (f *failingStore) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	if f.stallLeads {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.leads {
		return nil, errStore
	}
	return f.Store.ListLeads(ctx)
}

func (f *failingStore) UpdateAccountStatus(ctx context.Context, id int64, change domain.StatusChange) (bool, error) {
	if f.writes {
		return false, errStore
	}
	return f.Store.UpdateAccountStatus(ctx, id, change)
}

type harness struct {
	store     port.EvidenceStore
	metrics   *observability.Metrics
	customers *service.CustomerService
	loader    *service.EvidenceLoader
}

func newHarness(t *testing.T, store port.EvidenceStore) *harness {
	t.Helper()
	return newHarnessWithTimeout(t, store, time.Second)
}

func newHarnessWithTimeout(t *testing.T, store port.EvidenceStore, sourceTimeout time.Duration) *harness {
	t.Helper()
	phones := phone.NewNormalizer("KR")
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	profiles := cache.New[[]domain.AffiliateProfile](time.Minute)
	t.Cleanup(profiles.Close)

	loader := service.NewEvidenceLoader(store, profiles, phones, 5, sourceTimeout, metrics, logger)
	linker := service.NewLinker(store, phones, metrics, logger)
	customers := service.NewCustomerService(store, linker, loader, phones, service.DefaultTrialWindow, metrics, logger).
		WithClock(func() time.Time { return testNow })

	return &harness{store: store, metrics: metrics, customers: customers, loader: loader}
}

func (h *harness) reconciler() *service.Reconciler {
	return service.NewReconciler(h.store, h.loader, phone.NewNormalizer("KR"), 0, 0, h.metrics, zap.NewNop()).
		WithClock(func() time.Time { return testNow })
}
