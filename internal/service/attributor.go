package service

import (
	"sort"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
)

// Attribute derives the single ownership claim of a customer, or nil.
//
// A lead carrying an assignment claims the customer for its agent (or, with
// no agent, its manager). A landing-page registration bound to one of the
// customer's accounts claims it for the manager who shared the page. When
// both exist the landing-page owner wins and the lead's id and status are
// carried over.
//
// ev.Leads and ev.Registrations are expected to be pre-filtered to the
// customer's phone numbers.
func Attribute(c *domain.CanonicalCustomer, ev *domain.CustomerEvidence) *domain.OwnershipClaim {
	leadClaim := attributeLead(ev.Leads)
	pageClaim := attributeLandingPage(c, ev)

	var claim *domain.OwnershipClaim
	switch {
	case pageClaim != nil && leadClaim != nil:
		claim = pageClaim
		claim.LeadID = leadClaim.LeadID
		claim.LeadStatus = leadClaim.LeadStatus
	case pageClaim != nil:
		claim = pageClaim
	case leadClaim != nil:
		claim = leadClaim
	default:
		return nil
	}

	enrichOwner(claim, ev)
	return claim
}

// attributeLead uses the most recent lead that carries an assignment.
// Ties on creation time go to the lowest lead id.
func attributeLead(leads []domain.Lead) *domain.OwnershipClaim {
	var best *domain.Lead
	for i := range leads {
		l := &leads[i]
		if l.AssignedAgentID == nil && l.AssignedManagerID == nil {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) ||
			(l.CreatedAt.Equal(best.CreatedAt) && l.ID < best.ID) {
			best = l
		}
	}
	if best == nil {
		return nil
	}

	leadID := best.ID
	claim := &domain.OwnershipClaim{
		SourceKind: domain.ClaimSourceLead,
		LeadID:     &leadID,
		LeadStatus: best.Status,
	}
	if best.AssignedAgentID != nil {
		claim.OwnerType = domain.OwnerAgent
		claim.OwnerProfileID = *best.AssignedAgentID
	} else {
		claim.OwnerType = domain.OwnerManager
		claim.OwnerProfileID = *best.AssignedManagerID
	}
	return claim
}

// attributeLandingPage uses the most recent registration bound to one of the
// customer's accounts whose landing page has been shared by a manager.
func attributeLandingPage(c *domain.CanonicalCustomer, ev *domain.CustomerEvidence) *domain.OwnershipClaim {
	owners := make(map[int64]int64, len(ev.Shares))
	for _, sh := range ev.Shares {
		if cur, ok := owners[sh.LandingPageID]; !ok || sh.ManagerID < cur {
			owners[sh.LandingPageID] = sh.ManagerID
		}
	}

	ids := c.AccountIDs()
	var best *domain.FunnelRegistration
	for i := range ev.Registrations {
		r := &ev.Registrations[i]
		if r.AccountID == nil || !containsID(ids, *r.AccountID) {
			continue
		}
		if _, ok := owners[r.LandingPageID]; !ok {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID < best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil
	}

	pageID := best.LandingPageID
	return &domain.OwnershipClaim{
		OwnerType:      domain.OwnerManager,
		OwnerProfileID: owners[pageID],
		SourceKind:     domain.ClaimSourceLandingPage,
		LandingPageID:  &pageID,
	}
}

// enrichOwner fills display fields from the affiliate directory and, for
// agents, the supervising manager from active relations.
func enrichOwner(claim *domain.OwnershipClaim, ev *domain.CustomerEvidence) {
	if p, ok := ev.Profiles[claim.OwnerProfileID]; ok {
		claim.OwnerName = p.DisplayName
		claim.Branch = p.Branch
	}
	if claim.OwnerType != domain.OwnerAgent {
		return
	}

	var managers []int64
	for _, rel := range ev.Relations {
		if rel.AgentID == claim.OwnerProfileID && rel.Active() {
			managers = append(managers, rel.ManagerID)
		}
	}
	if len(managers) == 0 {
		return
	}
	sort.Slice(managers, func(i, j int) bool { return managers[i] < managers[j] })
	supervisor := managers[0]
	claim.SupervisorID = &supervisor
	if claim.Branch == "" {
		if p, ok := ev.Profiles[supervisor]; ok {
			claim.Branch = p.Branch
		}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
