package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Accounts (one row per namespace membership)
// ============================================================

// Namespace identifies which product an account belongs to.
type Namespace string

const (
	NamespaceGuide       Namespace = "guide"
	NamespaceMarketplace Namespace = "marketplace"
	NamespaceOther       Namespace = "other"
)

// ParseNamespace accepts the stored namespace labels, case-insensitively.
func ParseNamespace(s string) (Namespace, bool) {
	switch Namespace(strings.ToLower(strings.TrimSpace(s))) {
	case NamespaceGuide:
		return NamespaceGuide, true
	case NamespaceMarketplace:
		return NamespaceMarketplace, true
	case NamespaceOther:
		return NamespaceOther, true
	}
	return "", false
}

// Opposite returns the namespace an account can be linked to.
// Accounts in the other namespace never link.
func (n Namespace) Opposite() (Namespace, bool) {
	switch n {
	case NamespaceGuide:
		return NamespaceMarketplace, true
	case NamespaceMarketplace:
		return NamespaceGuide, true
	case NamespaceOther:
		return "", false
	}
	return "", false
}

// SourceTag records how an account was created.
type SourceTag string

const (
	SourceSignup            SourceTag = "signup"
	SourceMarketplaceSignup SourceTag = "marketplace_signup"
	SourceLandingPage       SourceTag = "landing_page"
	SourceAdmin             SourceTag = "admin"
	SourceImport            SourceTag = "import"
)

// ParseSourceTag maps a stored source label to a SourceTag.
func ParseSourceTag(s string) (SourceTag, bool) {
	switch SourceTag(strings.ToLower(strings.TrimSpace(s))) {
	case SourceSignup:
		return SourceSignup, true
	case SourceMarketplaceSignup:
		return SourceMarketplaceSignup, true
	case SourceLandingPage:
		return SourceLandingPage, true
	case SourceAdmin:
		return SourceAdmin, true
	case SourceImport:
		return SourceImport, true
	}
	return "", false
}

// AccountStatus is the operational status of a guide account.
type AccountStatus string

const (
	StatusActive     AccountStatus = "active"
	StatusPackage    AccountStatus = "package"
	StatusDormant    AccountStatus = "dormant"
	StatusLocked     AccountStatus = "locked"
	StatusTest       AccountStatus = "test"
	StatusTestLocked AccountStatus = "test-locked"
)

// ParseAccountStatus returns false for unknown labels.
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch AccountStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, true
	case StatusPackage:
		return StatusPackage, true
	case StatusDormant:
		return StatusDormant, true
	case StatusLocked:
		return StatusLocked, true
	case StatusTest:
		return StatusTest, true
	case StatusTestLocked:
		return StatusTestLocked, true
	}
	return "", false
}

// AccountRef is a namespace-qualified account pointer, written "marketplace:42".
type AccountRef struct {
	Namespace Namespace `json:"namespace"`
	ID        int64     `json:"id"`
}

func (r AccountRef) String() string {
	return fmt.Sprintf("%s:%d", r.Namespace, r.ID)
}

// ParseAccountRef parses a stored cross-reference.
func ParseAccountRef(s string) (AccountRef, error) {
	ns, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return AccountRef{}, fmt.Errorf("cross-reference %q: missing namespace", s)
	}
	namespace, ok := ParseNamespace(ns)
	if !ok {
		return AccountRef{}, fmt.Errorf("cross-reference %q: unknown namespace", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return AccountRef{}, fmt.Errorf("cross-reference %q: invalid id", s)
	}
	return AccountRef{Namespace: namespace, ID: n}, nil
}

// Account is the stored record for one namespace membership.
type Account struct {
	ID        int64     `json:"id"`
	Namespace Namespace `json:"namespace"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CrossRef  string    `json:"crossReference,omitempty"`
	Source    SourceTag `json:"source"`

	Status          AccountStatus `json:"status,omitempty"`
	StatusReason    string        `json:"statusReason,omitempty"`
	StatusChangedAt *time.Time    `json:"statusChangedAt,omitempty"`
	Locked          bool          `json:"locked"`
	Hibernated      bool          `json:"hibernated"`

	TrialStartedAt    *time.Time `json:"trialStartedAt,omitempty"`
	PurchaseConfirmed bool       `json:"purchaseConfirmed"`
	Refunded          bool       `json:"refunded"`
	LastActiveAt      *time.Time `json:"lastActiveAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ref returns the namespace-qualified pointer to this account.
func (a Account) Ref() AccountRef {
	return AccountRef{Namespace: a.Namespace, ID: a.ID}
}

// StatusChange is a compare-and-set status write. The write only applies
// when the stored status is one of From (any status when From is empty).
type StatusChange struct {
	From         []AccountStatus
	To           AccountStatus
	Reason       string
	At           time.Time
	LastActiveAt *time.Time
}

// StatusUpdate is an explicit admin status write.
type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=active package dormant locked test test-locked"`
	Reason string `json:"reason" validate:"required,max=200"`
}
