package domain

import (
	"time"
)

// ============================================================
// Derived views (recomputed on every read, never stored)
// ============================================================

// LinkMethod records how a counterpart account was found.
type LinkMethod string

const (
	LinkNone             LinkMethod = "none"
	LinkCrossReference   LinkMethod = "cross_reference"
	LinkReverseReference LinkMethod = "reverse_reference"
	LinkPhone            LinkMethod = "phone"
)

// CanonicalCustomer is one physical person, backed by one or two accounts.
// When two accounts back it, Primary is the guide account.
type CanonicalCustomer struct {
	Primary     Account
	Counterpart *Account
	LinkMethod  LinkMethod
	// Ambiguous is set when the phone fallback saw more than one candidate.
	Ambiguous bool

	Name  string
	Phone string
	Email string
}

// Key identifies the customer by its primary account.
func (c *CanonicalCustomer) Key() string {
	return c.Primary.Ref().String()
}

// Accounts returns the backing accounts, primary first.
func (c *CanonicalCustomer) Accounts() []Account {
	if c.Counterpart == nil {
		return []Account{c.Primary}
	}
	return []Account{c.Primary, *c.Counterpart}
}

// AccountIDs returns the ids of the backing accounts, primary first.
func (c *CanonicalCustomer) AccountIDs() []int64 {
	ids := []int64{c.Primary.ID}
	if c.Counterpart != nil {
		ids = append(ids, c.Counterpart.ID)
	}
	return ids
}

// Account returns the backing account in namespace ns, if any.
func (c *CanonicalCustomer) Account(ns Namespace) *Account {
	if c.Primary.Namespace == ns {
		return &c.Primary
	}
	if c.Counterpart != nil && c.Counterpart.Namespace == ns {
		return c.Counterpart
	}
	return nil
}

// LastModified is the most recent UpdatedAt across backing accounts.
func (c *CanonicalCustomer) LastModified() time.Time {
	t := c.Primary.UpdatedAt
	if c.Counterpart != nil && c.Counterpart.UpdatedAt.After(t) {
		t = c.Counterpart.UpdatedAt
	}
	return t
}

// OwnerType is the level at which an affiliate owns a customer.
type OwnerType string

const (
	OwnerManager OwnerType = "MANAGER"
	OwnerAgent   OwnerType = "AGENT"
)

// ClaimSource is the evidence kind an ownership claim was derived from.
type ClaimSource string

const (
	ClaimSourceLead        ClaimSource = "LEAD"
	ClaimSourceLandingPage ClaimSource = "LANDING_PAGE"
)

// OwnershipClaim names exactly one affiliate profile.
type OwnershipClaim struct {
	OwnerType      OwnerType   `json:"ownerType"`
	OwnerProfileID int64       `json:"ownerProfileId"`
	OwnerName      string      `json:"ownerName,omitempty"`
	Branch         string      `json:"branch,omitempty"`
	SupervisorID   *int64      `json:"supervisorId,omitempty"`
	SourceKind     ClaimSource `json:"sourceKind"`
	LeadID         *int64      `json:"leadId,omitempty"`
	LeadStatus     LeadStatus  `json:"leadStatus,omitempty"`
	LandingPageID  *int64      `json:"landingPageId,omitempty"`
}

// LifecycleGroup is the single primary stage of a customer.
type LifecycleGroup string

const (
	GroupRefund   LifecycleGroup = "REFUND"
	GroupPurchase LifecycleGroup = "PURCHASE"
	GroupTrial    LifecycleGroup = "TRIAL"
	GroupMall     LifecycleGroup = "MALL"
	GroupProspect LifecycleGroup = "PROSPECT"
)

// Facets are secondary classifications, independent of the primary group
// and of each other.
type Facets struct {
	ManagerCustomers bool `json:"managerCustomers"`
	AgentCustomers   bool `json:"agentCustomers"`
	Passport         bool `json:"passport"`
}

// CustomerEvidence is the pre-joined evidence for one customer.
type CustomerEvidence struct {
	Reservations  []Reservation
	Refunds       []RefundRecord
	Leads         []Lead
	Registrations []FunnelRegistration
	Shares        []LandingPageShare
	Relations     []AffiliateRelation
	Profiles      map[int64]AffiliateProfile
}

// StatusView is the read-time operational status of a customer's primary account.
type StatusView struct {
	Status                AccountStatus `json:"status"`
	Stored                AccountStatus `json:"stored,omitempty"`
	Reason                string        `json:"reason,omitempty"`
	ChangedAt             *time.Time    `json:"changedAt,omitempty"`
	LastActiveAt          *time.Time    `json:"lastActiveAt,omitempty"`
	TrialEndsAt           *time.Time    `json:"trialEndsAt,omitempty"`
	TrialRemainingSeconds *int64        `json:"trialRemainingSeconds,omitempty"`
	// HealPending is set when the reconciler would reactivate this account.
	HealPending bool `json:"healPending"`
}

// IdentityView is the external shape of a CanonicalCustomer.
type IdentityView struct {
	Key             string     `json:"key"`
	AccountID       int64      `json:"accountId"`
	Namespace       Namespace  `json:"namespace"`
	LinkedID        *int64     `json:"linkedId,omitempty"`
	LinkedNamespace Namespace  `json:"linkedNamespace,omitempty"`
	LinkMethod      LinkMethod `json:"linkMethod"`
	Ambiguous       bool       `json:"ambiguous"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email"`
	Source          SourceTag  `json:"source"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastModifiedAt  time.Time  `json:"lastModifiedAt"`
}

// Certificates are the lifecycle markers stored on the backing accounts.
type Certificates struct {
	PurchaseConfirmed bool `json:"purchaseConfirmed"`
	Refunded          bool `json:"refunded"`
}

// CustomerView is the evaluated customer returned by resolve and list.
type CustomerView struct {
	Identity       IdentityView    `json:"identity"`
	Ownership      *OwnershipClaim `json:"ownership"`
	LifecycleGroup LifecycleGroup  `json:"lifecycleGroup"`
	Facets         Facets          `json:"facets"`
	Status         StatusView      `json:"status"`
	Certificates   Certificates    `json:"certificates"`
	Reservations   int             `json:"reservationCount"`
	RefundedMinor  int64           `json:"refundedAmountMinor"`
}

// ResolvedCustomer is the result of resolving a single account.
type ResolvedCustomer struct {
	CustomerView
	Partial         bool     `json:"partial"`
	DegradedSources []string `json:"degradedSources,omitempty"`
}
