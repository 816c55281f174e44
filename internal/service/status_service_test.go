package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/memstore"
	"github.com/boddenberg/customer-identity-bfa/internal/service"

	"go.uber.org/zap"
)

func newStatusService(store *memstore.Store) *service.StatusService {
	return service.NewStatusService(store, store, zap.NewNop()).WithClock(func() time.Time { return testNow })
}

func TestSetStatus(t *testing.T) {
	store := scenarioStore()
	svc := newStatusService(store)

	acc, err := svc.SetStatus(context.Background(), 3, domain.StatusUpdate{Status: "Locked", Reason: " chargeback review "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Status != domain.StatusLocked || acc.StatusReason != "chargeback review" {
		t.Errorf("unexpected account: %+v", acc)
	}
	if acc.StatusChangedAt == nil || !acc.StatusChangedAt.Equal(testNow) {
		t.Errorf("expected change timestamp, got %v", acc.StatusChangedAt)
	}
}

func TestSetStatus_Validation(t *testing.T) {
	svc := newStatusService(scenarioStore())

	tests := []domain.StatusUpdate{
		{Status: "sleeping", Reason: "x"},
		{Status: "active"},
	}
	for _, upd := range tests {
		_, err := svc.SetStatus(context.Background(), 3, upd)
		var ve *domain.ErrValidation
		if !errors.As(err, &ve) {
			t.Errorf("%+v: expected ErrValidation, got %v", upd, err)
		}
	}
}

func TestSetStatus_UnknownAccount(t *testing.T) {
	svc := newStatusService(scenarioStore())

	_, err := svc.SetStatus(context.Background(), 404, domain.StatusUpdate{Status: "active", Reason: "x"})
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordReservationCreated(t *testing.T) {
	store := scenarioStore()
	svc := newStatusService(store)

	store.AddReservation(domain.Reservation{ID: 900, AccountID: 10, CreatedAt: testNow})
	acc, changed, err := svc.RecordReservationCreated(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || acc.Status != domain.StatusPackage {
		t.Fatalf("expected package, got changed=%v %+v", changed, acc)
	}

	store.AddReservation(domain.Reservation{ID: 901, AccountID: 10, CreatedAt: testNow})
	if _, err := svc.SetStatus(context.Background(), 10, domain.StatusUpdate{Status: "active", Reason: "trip done"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc, changed, err = svc.RecordReservationCreated(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed || acc.Status != domain.StatusActive {
		t.Errorf("second reservation must not move the status, got changed=%v %s", changed, acc.Status)
	}
}

func TestRecordReservationCreated_MarketplaceAccount(t *testing.T) {
	svc := newStatusService(scenarioStore())

	_, _, err := svc.RecordReservationCreated(context.Background(), 6)
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
