package service_test

import (
	"testing"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/service"
)

func single(id int64) *domain.CanonicalCustomer {
	c := service.Merge(domain.Account{ID: id, Namespace: domain.NamespaceGuide}, nil, domain.LinkNone, false)
	return &c
}

func profiles() map[int64]domain.AffiliateProfile {
	return map[int64]domain.AffiliateProfile{
		7:  {ID: 7, Role: domain.RoleAgent, DisplayName: "Agent Seven"},
		9:  {ID: 9, Role: domain.RoleManager, DisplayName: "Manager Nine", Branch: "Gangnam"},
		11: {ID: 11, Role: domain.RoleManager, DisplayName: "Manager Eleven", Branch: "Busan"},
	}
}

func TestAttribute_LeadWithAgent(t *testing.T) {
	ev := &domain.CustomerEvidence{
		Leads:     []domain.Lead{{ID: 500, AssignedAgentID: ptr(int64(7)), AssignedManagerID: ptr(int64(9)), Status: domain.LeadContacted, CreatedAt: at(1)}},
		Relations: []domain.AffiliateRelation{{ManagerID: 9, AgentID: 7, Status: "active"}},
		Profiles:  profiles(),
	}

	claim := service.Attribute(single(1), ev)
	if claim == nil || claim.OwnerType != domain.OwnerAgent || claim.OwnerProfileID != 7 {
		t.Fatalf("expected agent 7 claim, got %+v", claim)
	}
	if claim.SourceKind != domain.ClaimSourceLead || *claim.LeadID != 500 {
		t.Errorf("unexpected source: %+v", claim)
	}
	if claim.SupervisorID == nil || *claim.SupervisorID != 9 {
		t.Errorf("expected supervisor 9, got %v", claim.SupervisorID)
	}
	if claim.OwnerName != "Agent Seven" || claim.Branch != "Gangnam" {
		t.Errorf("expected enriched owner, got name=%q branch=%q", claim.OwnerName, claim.Branch)
	}
}

func TestAttribute_LeadWithManagerOnly(t *testing.T) {
	ev := &domain.CustomerEvidence{
		Leads:    []domain.Lead{{ID: 501, AssignedManagerID: ptr(int64(9)), CreatedAt: at(1)}},
		Profiles: profiles(),
	}
	claim := service.Attribute(single(1), ev)
	if claim == nil || claim.OwnerType != domain.OwnerManager || claim.OwnerProfileID != 9 {
		t.Fatalf("expected manager 9 claim, got %+v", claim)
	}
	if claim.SupervisorID != nil {
		t.Error("manager claims carry no supervisor")
	}
}

func TestAttribute_MostRecentAssignedLeadWins(t *testing.T) {
	ev := &domain.CustomerEvidence{
		Leads: []domain.Lead{
			{ID: 1, AssignedManagerID: ptr(int64(9)), CreatedAt: at(1)},
			{ID: 2, AssignedAgentID: ptr(int64(7)), CreatedAt: at(3)},
			{ID: 3, CreatedAt: at(5)},
		},
	}
	claim := service.Attribute(single(1), ev)
	if claim == nil || *claim.LeadID != 2 {
		t.Fatalf("expected lead 2, got %+v", claim)
	}
}

func TestAttribute_LandingPageOverridesOwnerButKeepsLeadFields(t *testing.T) {
	ev := &domain.CustomerEvidence{
		Leads:         []domain.Lead{{ID: 501, AssignedAgentID: ptr(int64(7)), Status: domain.LeadNew, CreatedAt: at(4)}},
		Registrations: []domain.FunnelRegistration{{ID: 600, LandingPageID: 70, AccountID: ptr(int64(1)), CreatedAt: at(5)}},
		Shares:        []domain.LandingPageShare{{LandingPageID: 70, ManagerID: 11}},
		Profiles:      profiles(),
	}

	claim := service.Attribute(single(1), ev)
	if claim == nil {
		t.Fatal("expected a claim")
	}
	if claim.OwnerType != domain.OwnerManager || claim.OwnerProfileID != 11 || claim.OwnerName != "Manager Eleven" || claim.Branch != "Busan" {
		t.Errorf("expected landing-page owner fields, got %+v", claim)
	}
	if claim.SourceKind != domain.ClaimSourceLandingPage || claim.LandingPageID == nil || *claim.LandingPageID != 70 {
		t.Errorf("expected landing-page source, got %+v", claim)
	}
	if claim.LeadID == nil || *claim.LeadID != 501 || claim.LeadStatus != domain.LeadNew {
		t.Errorf("expected lead fields preserved, got %+v", claim)
	}
	if claim.SupervisorID != nil {
		t.Error("landing-page claims are manager level")
	}
}

func TestAttribute_RegistrationMustBindToCustomerAndShare(t *testing.T) {
	tests := []struct {
		name string
		reg  domain.FunnelRegistration
	}{
		{"unbound", domain.FunnelRegistration{ID: 1, LandingPageID: 70}},
		{"other account", domain.FunnelRegistration{ID: 1, LandingPageID: 70, AccountID: ptr(int64(99))}},
		{"unshared page", domain.FunnelRegistration{ID: 1, LandingPageID: 71, AccountID: ptr(int64(1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &domain.CustomerEvidence{
				Registrations: []domain.FunnelRegistration{tt.reg},
				Shares:        []domain.LandingPageShare{{LandingPageID: 70, ManagerID: 11}},
			}
			if claim := service.Attribute(single(1), ev); claim != nil {
				t.Errorf("expected no claim, got %+v", claim)
			}
		})
	}
}

func TestAttribute_NoEvidence(t *testing.T) {
	if claim := service.Attribute(single(1), &domain.CustomerEvidence{}); claim != nil {
		t.Errorf("expected unowned, got %+v", claim)
	}
}
