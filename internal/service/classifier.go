package service

import (
	"github.com/boddenberg/customer-identity-bfa/internal/domain"
)

// Classify assigns the single primary lifecycle group. First match wins:
// any refund, any reservation, a trial start on a backing account, a
// marketplace self-signup, and finally prospect.
func Classify(c *domain.CanonicalCustomer, ev *domain.CustomerEvidence) domain.LifecycleGroup {
	if len(ev.Refunds) > 0 {
		return domain.GroupRefund
	}
	if len(ev.Reservations) > 0 {
		return domain.GroupPurchase
	}
	accounts := c.Accounts()
	for _, a := range accounts {
		if a.TrialStartedAt != nil {
			return domain.GroupTrial
		}
	}
	for _, a := range accounts {
		if a.Source == domain.SourceMarketplaceSignup {
			return domain.GroupMall
		}
	}
	return domain.GroupProspect
}

// ComputeFacets evaluates the secondary facets. Each is independent of the
// others and, apart from passport, of the primary group.
func ComputeFacets(group domain.LifecycleGroup, claim *domain.OwnershipClaim, ev *domain.CustomerEvidence) domain.Facets {
	var f domain.Facets
	if claim != nil {
		f.ManagerCustomers = claim.OwnerType == domain.OwnerManager
		f.AgentCustomers = claim.OwnerType == domain.OwnerAgent
	}
	if group == domain.GroupPurchase {
		if latest := latestReservation(ev.Reservations); latest != nil {
			f.Passport = len(latest.Travelers) > 0
		}
	}
	return f
}

// latestReservation orders by creation time, ties going to the highest id.
func latestReservation(rs []domain.Reservation) *domain.Reservation {
	var latest *domain.Reservation
	for i := range rs {
		r := &rs[i]
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) ||
			(r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
			latest = r
		}
	}
	return latest
}

// MatchesGroup reports whether a view belongs to a listing group.
func MatchesGroup(v *domain.CustomerView, g domain.GroupKey) bool {
	switch g {
	case "", domain.GroupKeyAll:
		return true
	case domain.GroupKeyRefund:
		return v.LifecycleGroup == domain.GroupRefund
	case domain.GroupKeyPurchase:
		return v.LifecycleGroup == domain.GroupPurchase
	case domain.GroupKeyTrial:
		return v.LifecycleGroup == domain.GroupTrial
	case domain.GroupKeyMall:
		return v.LifecycleGroup == domain.GroupMall
	case domain.GroupKeyProspects:
		return v.LifecycleGroup == domain.GroupProspect
	case domain.GroupKeyManagerCustomers:
		return v.Facets.ManagerCustomers
	case domain.GroupKeyAgentCustomers:
		return v.Facets.AgentCustomers
	case domain.GroupKeyPassport:
		return v.Facets.Passport
	}
	return false
}

// CountGroups tallies the whole population. Facets overlap primary groups,
// so the named counts need not sum to All.
func CountGroups(views []domain.CustomerView) domain.GroupCounts {
	counts := domain.GroupCounts{All: len(views)}
	for i := range views {
		v := &views[i]
		switch v.LifecycleGroup {
		case domain.GroupRefund:
			counts.Refund++
		case domain.GroupPurchase:
			counts.Purchase++
		case domain.GroupTrial:
			counts.Trial++
		case domain.GroupMall:
			counts.Mall++
		case domain.GroupProspect:
			counts.Prospects++
		}
		if v.Facets.ManagerCustomers {
			counts.ManagerCustomers++
		}
		if v.Facets.AgentCustomers {
			counts.AgentCustomers++
		}
		if v.Facets.Passport {
			counts.Passport++
		}
	}
	return counts
}
