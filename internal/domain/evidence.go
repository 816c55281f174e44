package domain

import (
	"strings"
	"time"
)

// ============================================================
// Evidence records consumed from the store
// ============================================================

// LeadStatus values are kept as stored; the known ones are listed here.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadConverted LeadStatus = "converted"
	LeadDropped   LeadStatus = "dropped"
)

// Lead captures which affiliate originated a prospective customer.
type Lead struct {
	ID                int64      `json:"id"`
	Phone             string     `json:"phone"`
	AssignedAgentID   *int64     `json:"assignedAgentId,omitempty"`
	AssignedManagerID *int64     `json:"assignedManagerId,omitempty"`
	Status            LeadStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// AffiliateRole is the role of an affiliate profile.
type AffiliateRole string

const (
	RoleManager AffiliateRole = "manager"
	RoleAgent   AffiliateRole = "agent"
	RoleHQ      AffiliateRole = "hq"
)

// ParseAffiliateRole returns false for unknown roles.
func ParseAffiliateRole(s string) (AffiliateRole, bool) {
	switch AffiliateRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleManager:
		return RoleManager, true
	case RoleAgent:
		return RoleAgent, true
	case RoleHQ:
		return RoleHQ, true
	}
	return "", false
}

// AffiliateProfile is a branch manager, sales agent or HQ member.
type AffiliateProfile struct {
	ID          int64         `json:"id"`
	Role        AffiliateRole `json:"role"`
	Status      string        `json:"status"`
	DisplayName string        `json:"displayName"`
	Branch      string        `json:"branch"`
	Phone       string        `json:"phone"`
}

// AffiliateRelation is a directed manager→agent edge.
type AffiliateRelation struct {
	ManagerID int64  `json:"managerId"`
	AgentID   int64  `json:"agentId"`
	Status    string `json:"status"`
}

// Active reports whether the relation is currently in force.
func (r AffiliateRelation) Active() bool {
	return r.Status == "" || strings.EqualFold(r.Status, "active")
}

// LandingPageShare makes a funnel page's registrants attributable to a manager.
type LandingPageShare struct {
	LandingPageID int64 `json:"landingPageId"`
	ManagerID     int64 `json:"managerId"`
}

// FunnelRegistration is a registration captured on a landing page.
type FunnelRegistration struct {
	ID            int64     `json:"id"`
	Phone         string    `json:"phone"`
	LandingPageID int64     `json:"landingPageId"`
	AccountID     *int64    `json:"accountId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Traveler is a reservation sub-record.
type Traveler struct {
	Name           string     `json:"name"`
	PassportNumber string     `json:"passportNumber,omitempty"`
	PassportExpiry *time.Time `json:"passportExpiry,omitempty"`
}

// Reservation belongs to exactly one account.
type Reservation struct {
	ID          int64      `json:"id"`
	AccountID   int64      `json:"accountId"`
	Travelers   []Traveler `json:"travelers"`
	AmountMinor int64      `json:"amountMinor"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// RefundRecord amounts are integer minor units.
type RefundRecord struct {
	AccountID   int64     `json:"accountId"`
	AmountMinor int64     `json:"amountMinor"`
	RefundedAt  time.Time `json:"refundedAt"`
}
