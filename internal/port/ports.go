// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
)

// AccountReader reads accounts from the evidence store.
// Phone arguments are normalized with the same normalizer the store uses.
type AccountReader interface {
	// GetAccount returns *domain.ErrNotFound when no account has this id.
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	FindAccountsByPhone(ctx context.Context, ns domain.Namespace, phone string) ([]domain.Account, error)
	// FindAccountsByCrossReference is the reverse index: accounts whose
	// cross-reference points at ref.
	FindAccountsByCrossReference(ctx context.Context, ref domain.AccountRef) ([]domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

// AccountStatusWriter is the only write path into the account table.
type AccountStatusWriter interface {
	// UpdateAccountStatus applies change when the stored status matches
	// change.From. It reports whether a row was updated.
	UpdateAccountStatus(ctx context.Context, id int64, change domain.StatusChange) (bool, error)
}

// AccountStore combines account reads and status writes.
type AccountStore interface {
	AccountReader
	AccountStatusWriter
}

// ReservationStore reads reservations with their traveler sub-records.
type ReservationStore interface {
	ListReservationsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.Reservation, error)
	ListReservations(ctx context.Context) ([]domain.Reservation, error)
}

// RefundStore reads refund records.
type RefundStore interface {
	ListRefundsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.RefundRecord, error)
	ListRefunds(ctx context.Context) ([]domain.RefundRecord, error)
}

// LeadStore reads attribution leads.
type LeadStore interface {
	FindLeadsByPhone(ctx context.Context, phone string) ([]domain.Lead, error)
	ListLeads(ctx context.Context) ([]domain.Lead, error)
}

// FunnelStore reads landing-page registrations and shares.
type FunnelStore interface {
	FindRegistrationsByPhone(ctx context.Context, phone string) ([]domain.FunnelRegistration, error)
	ListRegistrations(ctx context.Context) ([]domain.FunnelRegistration, error)
	ListSharesByLandingPages(ctx context.Context, landingPageIDs []int64) ([]domain.LandingPageShare, error)
	ListShares(ctx context.Context) ([]domain.LandingPageShare, error)
}

// AffiliateStore reads the affiliate directory.
type AffiliateStore interface {
	GetProfiles(ctx context.Context, ids []int64) ([]domain.AffiliateProfile, error)
	ListProfiles(ctx context.Context) ([]domain.AffiliateProfile, error)
	ListRelationsByAgents(ctx context.Context, agentIDs []int64) ([]domain.AffiliateRelation, error)
	ListRelations(ctx context.Context) ([]domain.AffiliateRelation, error)
}

// EvidenceStore is everything the identity engine reads from.
type EvidenceStore interface {
	AccountStore
	ReservationStore
	RefundStore
	LeadStore
	FunnelStore
	AffiliateStore

	Ping(ctx context.Context) error
}

// PhoneNormalizer canonicalises phone numbers for matching.
type PhoneNormalizer interface {
	Normalize(raw string) string
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// LoadingCache is a Cache that loads missing entries, sharing concurrent loads.
type LoadingCache[T any] interface {
	Cache[T]
	GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, bool, error)
}

// ReconcileEnqueuer hands a reconciliation run to the background worker.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, requestedBy string) (string, error)
}
