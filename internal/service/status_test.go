package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/service"
)

func guideAccount(status domain.AccountStatus) domain.Account {
	return domain.Account{ID: 1, Namespace: domain.NamespaceGuide, Status: status}
}

func TestDeriveStatus_TrialWindow(t *testing.T) {
	started := testNow.Add(-71 * time.Hour)
	acc := guideAccount(domain.StatusTest)
	acc.TrialStartedAt = &started

	v := service.DeriveStatus(acc, 0, testNow, service.DefaultTrialWindow)
	if v.Status != domain.StatusTest {
		t.Fatalf("expected test inside window, got %s", v.Status)
	}
	if v.TrialRemainingSeconds == nil || *v.TrialRemainingSeconds != 3600 {
		t.Errorf("expected 3600s remaining, got %v", v.TrialRemainingSeconds)
	}

	v = service.DeriveStatus(acc, 0, testNow.Add(time.Hour), service.DefaultTrialWindow)
	if v.Status != domain.StatusTestLocked {
		t.Errorf("expected test-locked at window end, got %s", v.Status)
	}
	if v.Stored != domain.StatusTest {
		t.Errorf("stored status must be reported unchanged, got %s", v.Stored)
	}
}

func TestDeriveStatus_TestWithoutTrialStart(t *testing.T) {
	v := service.DeriveStatus(guideAccount(domain.StatusTest), 0, testNow, service.DefaultTrialWindow)
	if v.Status != domain.StatusTest {
		t.Errorf("expected test, got %s", v.Status)
	}
	if v.TrialRemainingSeconds != nil || v.TrialEndsAt != nil {
		t.Error("remaining time must be unknown")
	}
}

func TestDeriveStatus_LegacyFlags(t *testing.T) {
	locked := guideAccount("")
	locked.Locked = true
	hibernated := guideAccount("")
	hibernated.Hibernated = true

	if got := service.DeriveStatus(locked, 0, testNow, 0).Status; got != domain.StatusLocked {
		t.Errorf("expected locked, got %s", got)
	}
	if got := service.DeriveStatus(hibernated, 0, testNow, 0).Status; got != domain.StatusDormant {
		t.Errorf("expected dormant, got %s", got)
	}
	if got := service.DeriveStatus(guideAccount(""), 0, testNow, 0).Status; got != domain.StatusActive {
		t.Errorf("expected active, got %s", got)
	}
}

func TestDeriveStatus_HealPendingDoesNotChangeStatus(t *testing.T) {
	v := service.DeriveStatus(guideAccount(domain.StatusDormant), 1, testNow, 0)
	if v.Status != domain.StatusDormant || !v.HealPending {
		t.Errorf("expected dormant with heal pending, got %+v", v)
	}
}

func TestNeedsHeal(t *testing.T) {
	tests := []struct {
		name    string
		account domain.Account
		count   int
		want    bool
	}{
		{"dormant with reservations", guideAccount(domain.StatusDormant), 1, true},
		{"locked with reservations", guideAccount(domain.StatusLocked), 2, true},
		{"dormant without reservations", guideAccount(domain.StatusDormant), 0, false},
		{"active", guideAccount(domain.StatusActive), 1, false},
		{"test-locked", guideAccount(domain.StatusTestLocked), 1, false},
		{"marketplace account", domain.Account{Namespace: domain.NamespaceMarketplace, Status: domain.StatusDormant}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.NeedsHeal(tt.account, tt.count); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusAfterReservation(t *testing.T) {
	if st, ok := service.StatusAfterReservation(guideAccount(domain.StatusActive), 0); !ok || st != domain.StatusPackage {
		t.Errorf("expected package for first reservation, got %q %v", st, ok)
	}
	if _, ok := service.StatusAfterReservation(guideAccount(domain.StatusActive), 1); ok {
		t.Error("prior reservations must not move the status")
	}
	confirmed := guideAccount(domain.StatusActive)
	confirmed.PurchaseConfirmed = true
	if _, ok := service.StatusAfterReservation(confirmed, 0); ok {
		t.Error("purchase history must not move the status")
	}
}
