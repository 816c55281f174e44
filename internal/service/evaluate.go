package service

import (
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
)

// Evaluate turns a linked customer and its pre-joined evidence into the
// external view. It is pure; resolve and list both go through it so a
// customer looks the same on either path.
func Evaluate(c *domain.CanonicalCustomer, ev *domain.CustomerEvidence, now time.Time, trialWindow time.Duration) domain.CustomerView {
	claim := Attribute(c, ev)
	group := Classify(c, ev)

	view := domain.CustomerView{
		Identity:       identityView(c),
		Ownership:      claim,
		LifecycleGroup: group,
		Facets:         ComputeFacets(group, claim, ev),
		Reservations:   len(ev.Reservations),
	}
	for _, r := range ev.Refunds {
		view.RefundedMinor += r.AmountMinor
	}
	for _, a := range c.Accounts() {
		view.Certificates.PurchaseConfirmed = view.Certificates.PurchaseConfirmed || a.PurchaseConfirmed
		view.Certificates.Refunded = view.Certificates.Refunded || a.Refunded
	}

	statusAccount := c.Primary
	if g := c.Account(domain.NamespaceGuide); g != nil {
		statusAccount = *g
	}
	counterpartReservations := 0
	if mp := c.Account(domain.NamespaceMarketplace); mp != nil {
		for _, r := range ev.Reservations {
			if r.AccountID == mp.ID {
				counterpartReservations++
			}
		}
	}
	view.Status = DeriveStatus(statusAccount, counterpartReservations, now, trialWindow)
	return view
}

func identityView(c *domain.CanonicalCustomer) domain.IdentityView {
	v := domain.IdentityView{
		Key:            c.Key(),
		AccountID:      c.Primary.ID,
		Namespace:      c.Primary.Namespace,
		LinkMethod:     c.LinkMethod,
		Ambiguous:      c.Ambiguous,
		Name:           c.Name,
		Phone:          c.Phone,
		Email:          c.Email,
		Source:         c.Primary.Source,
		CreatedAt:      c.Primary.CreatedAt,
		LastModifiedAt: c.LastModified(),
	}
	if c.Counterpart != nil {
		id := c.Counterpart.ID
		v.LinkedID = &id
		v.LinkedNamespace = c.Counterpart.Namespace
		if c.Counterpart.CreatedAt.Before(v.CreatedAt) {
			v.CreatedAt = c.Counterpart.CreatedAt
		}
	}
	return v
}
