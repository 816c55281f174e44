package memstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/memstore"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/phone"
)

func TestStore_PhoneIndexIsSortedAndNamespaced(t *testing.T) {
	s := memstore.New(phone.NewNormalizer("KR"))
	s.PutAccount(domain.Account{ID: 30, Namespace: domain.NamespaceMarketplace, Phone: "010-1234-5678"})
	s.PutAccount(domain.Account{ID: 10, Namespace: domain.NamespaceMarketplace, Phone: "01012345678"})
	s.PutAccount(domain.Account{ID: 20, Namespace: domain.NamespaceGuide, Phone: "010 1234 5678"})

	got, err := s.FindAccountsByPhone(context.Background(), domain.NamespaceMarketplace, "+821012345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 10 || got[1].ID != 30 {
		t.Fatalf("expected marketplace accounts [10 30], got %+v", got)
	}
}

func TestStore_ReverseIndexFollowsUpdates(t *testing.T) {
	s := memstore.New(phone.NewNormalizer("KR"))
	s.PutAccount(domain.Account{ID: 1, Namespace: domain.NamespaceGuide, CrossRef: "marketplace:2"})

	target := domain.AccountRef{Namespace: domain.NamespaceMarketplace, ID: 2}
	got, _ := s.FindAccountsByCrossReference(context.Background(), target)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected account 1 in reverse index, got %+v", got)
	}

	s.PutAccount(domain.Account{ID: 1, Namespace: domain.NamespaceGuide, CrossRef: "marketplace:3"})
	got, _ = s.FindAccountsByCrossReference(context.Background(), target)
	if len(got) != 0 {
		t.Fatalf("expected stale reverse entry removed, got %+v", got)
	}
}

func TestStore_GetAccountNotFound(t *testing.T) {
	s := memstore.New(phone.NewNormalizer("KR"))

	_, err := s.GetAccount(context.Background(), 99)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateAccountStatusCompareAndSet(t *testing.T) {
	s := memstore.New(phone.NewNormalizer("KR"))
	s.PutAccount(domain.Account{ID: 1, Namespace: domain.NamespaceGuide, Status: domain.StatusDormant})
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	change := domain.StatusChange{
		From:         []domain.AccountStatus{domain.StatusDormant, domain.StatusLocked},
		To:           domain.StatusActive,
		Reason:       "auto-heal",
		At:           at,
		LastActiveAt: &at,
	}

	ok, err := s.UpdateAccountStatus(ctx, 1, change)
	if err != nil || !ok {
		t.Fatalf("expected first write to apply, got ok=%v err=%v", ok, err)
	}

	ok, err = s.UpdateAccountStatus(ctx, 1, change)
	if err != nil || ok {
		t.Fatalf("expected second write to be a no-op, got ok=%v err=%v", ok, err)
	}

	a, _ := s.GetAccount(ctx, 1)
	if a.Status != domain.StatusActive || a.LastActiveAt == nil || !a.LastActiveAt.Equal(at) {
		t.Errorf("unexpected account after write: %+v", a)
	}
}

func TestStore_ContextCancelled(t *testing.T) {
	s := memstore.New(phone.NewNormalizer("KR"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ListAccounts(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.json")
	body := `{
		"accounts": [{"id": 1, "namespace": "guide", "phone": "010-1", "crossReference": "marketplace:2"},
		             {"id": 2, "namespace": "marketplace", "phone": "010-1"}],
		"reservations": [{"id": 5, "accountId": 1, "travelers": [{"name": "Kim"}]}]
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := memstore.LoadFile(path, phone.NewNormalizer("KR"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, _ := s.ListReservationsByAccounts(context.Background(), []int64{1})
	if len(res) != 1 || len(res[0].Travelers) != 1 {
		t.Fatalf("expected one reservation with one traveler, got %+v", res)
	}
	byPhone, _ := s.FindAccountsByPhone(context.Background(), domain.NamespaceMarketplace, "0101")
	if len(byPhone) != 1 || byPhone[0].ID != 2 {
		t.Fatalf("expected marketplace account 2 by phone, got %+v", byPhone)
	}
}
