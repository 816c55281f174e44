package service

import (
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
)

// DefaultTrialWindow is how long a test account stays usable.
const DefaultTrialWindow = 72 * time.Hour

// DeriveStatus computes the read-time status of a guide account. It never
// writes: when the account qualifies for auto-heal the stored status is
// returned with HealPending set and the reconciler applies the change.
//
// counterpartReservations is the reservation count of the linked
// marketplace account.
func DeriveStatus(acc domain.Account, counterpartReservations int, now time.Time, trialWindow time.Duration) domain.StatusView {
	if trialWindow <= 0 {
		trialWindow = DefaultTrialWindow
	}
	stored := effectiveStoredStatus(acc)
	view := domain.StatusView{
		Status:       stored,
		Stored:       acc.Status,
		Reason:       acc.StatusReason,
		ChangedAt:    acc.StatusChangedAt,
		LastActiveAt: acc.LastActiveAt,
	}

	switch stored {
	case domain.StatusTest:
		if acc.TrialStartedAt == nil {
			break
		}
		ends := acc.TrialStartedAt.Add(trialWindow)
		view.TrialEndsAt = &ends
		if !now.Before(ends) {
			view.Status = domain.StatusTestLocked
			remaining := int64(0)
			view.TrialRemainingSeconds = &remaining
			break
		}
		remaining := int64(ends.Sub(now) / time.Second)
		view.TrialRemainingSeconds = &remaining
	case domain.StatusTestLocked:
		if acc.TrialStartedAt != nil {
			ends := acc.TrialStartedAt.Add(trialWindow)
			view.TrialEndsAt = &ends
		}
	}

	view.HealPending = NeedsHeal(acc, counterpartReservations)
	return view
}

// NeedsHeal reports whether a dormant or locked guide account should be
// reactivated because its marketplace counterpart has reservations.
func NeedsHeal(acc domain.Account, counterpartReservations int) bool {
	if acc.Namespace != domain.NamespaceGuide || counterpartReservations == 0 {
		return false
	}
	switch effectiveStoredStatus(acc) {
	case domain.StatusDormant, domain.StatusLocked:
		return true
	}
	return false
}

// StatusAfterReservation returns the status a guide account moves to when a
// reservation is created. Only the first reservation of an account with no
// purchase history moves it to package.
func StatusAfterReservation(acc domain.Account, priorReservations int) (domain.AccountStatus, bool) {
	if acc.Namespace != domain.NamespaceGuide || priorReservations > 0 || acc.PurchaseConfirmed {
		return "", false
	}
	if effectiveStoredStatus(acc) == domain.StatusPackage {
		return "", false
	}
	return domain.StatusPackage, true
}

// effectiveStoredStatus falls back to the legacy flags when no status label
// is stored.
func effectiveStoredStatus(acc domain.Account) domain.AccountStatus {
	if acc.Status != "" {
		return acc.Status
	}
	switch {
	case acc.Locked:
		return domain.StatusLocked
	case acc.Hibernated:
		return domain.StatusDormant
	}
	return domain.StatusActive
}
