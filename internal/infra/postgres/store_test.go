package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/postgres"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/resilience"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// --- Fakes ---

type recordedCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []recordedCall

	rows     [][]any
	queryErr error

	row    []any
	rowErr error

	execTag pgconn.CommandTag
	execErr error
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, recordedCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, recordedCall{sql: sql, args: args})
	return fakeRow{values: f.row, err: f.rowErr}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, recordedCall{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakeDB) Ping(context.Context) error { return nil }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.pos++; return r.pos < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error                       { return assign(r.data[r.pos], dest) }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

// assign copies values into scan destinations, wrapping into pointers for nullable columns.
func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("fake scan: %d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		rv := reflect.ValueOf(values[i])
		switch {
		case rv.Type().AssignableTo(dv.Type()):
			dv.Set(rv)
		case dv.Kind() == reflect.Ptr && rv.Type().AssignableTo(dv.Type().Elem()):
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(rv)
			dv.Set(p)
		default:
			return fmt.Errorf("fake scan: cannot assign %T to %s", values[i], dv.Type())
		}
	}
	return nil
}

func newStore(db *fakeDB) *postgres.Store {
	guard := resilience.NewGuard("postgres-test", resilience.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 4,
	})
	return postgres.NewStore(db, guard, zap.NewNop())
}

var created = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func accountRow(id int64, ns string, refNS any, refID any, status string) []any {
	return []any{
		id, ns, "Kim", "010-1", "kim@example.com", refNS, refID,
		"marketplace_signup", status, "", nil, false, false,
		nil, true, false, nil, created, created,
	}
}

// --- Tests ---

func TestGetAccount_ScansRow(t *testing.T) {
	db := &fakeDB{row: accountRow(1, "guide", "marketplace", int64(2), "weird")}
	s := newStore(db)

	a, err := s.GetAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Namespace != domain.NamespaceGuide || a.CrossRef != "marketplace:2" {
		t.Errorf("unexpected namespace/cross-ref: %+v", a)
	}
	if a.Source != domain.SourceMarketplaceSignup || !a.PurchaseConfirmed {
		t.Errorf("unexpected source/markers: %+v", a)
	}
	if a.Status != "" {
		t.Errorf("expected unknown stored status to be dropped, got %q", a.Status)
	}
	if !strings.Contains(db.calls[0].sql, "WHERE id = $1") {
		t.Errorf("unexpected sql: %s", db.calls[0].sql)
	}
}

func TestGetAccount_NotFoundIsNotRetried(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	s := newStore(db)

	_, err := s.GetAccount(context.Background(), 42)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(db.calls) != 1 {
		t.Errorf("expected 1 query, got %d", len(db.calls))
	}
}

func TestFindAccountsByPhone_UsesNormalizedColumn(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		accountRow(5, "marketplace", nil, nil, "active"),
		accountRow(9, "marketplace", nil, nil, ""),
	}}
	s := newStore(db)

	got, err := s.FindAccountsByPhone(context.Background(), domain.NamespaceMarketplace, "0101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 5 || got[0].Status != domain.StatusActive {
		t.Fatalf("unexpected accounts: %+v", got)
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "phone_normalized = $2") || !strings.Contains(call.sql, "ORDER BY id") {
		t.Errorf("unexpected sql: %s", call.sql)
	}
	if call.args[0] != "marketplace" || call.args[1] != "0101" {
		t.Errorf("unexpected args: %v", call.args)
	}
}

func TestFindAccountsByCrossReference_QueriesReverseIndex(t *testing.T) {
	db := &fakeDB{}
	s := newStore(db)

	_, err := s.FindAccountsByCrossReference(context.Background(), domain.AccountRef{Namespace: domain.NamespaceMarketplace, ID: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "cross_ref_namespace = $1 AND cross_ref_id = $2") {
		t.Errorf("unexpected sql: %s", call.sql)
	}
	if call.args[0] != "marketplace" || call.args[1] != int64(2) {
		t.Errorf("unexpected args: %v", call.args)
	}
}

func TestListReservations_DecodesTravelers(t *testing.T) {
	travelers := []byte(`[{"name":"Kim","passportNumber":"M123","passportExpiry":"2030-01-01T00:00:00+00:00"},{"name":"Lee","passportNumber":null,"passportExpiry":null}]`)
	db := &fakeDB{rows: [][]any{{int64(10), int64(1), int64(150000), created, travelers}}}
	s := newStore(db)

	got, err := s.ListReservationsByAccounts(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || len(got[0].Travelers) != 2 {
		t.Fatalf("unexpected reservations: %+v", got)
	}
	if got[0].Travelers[0].PassportExpiry == nil || got[0].Travelers[1].PassportExpiry != nil {
		t.Errorf("unexpected passport data: %+v", got[0].Travelers)
	}
	if !strings.Contains(db.calls[0].sql, "r.account_id = ANY($1)") {
		t.Errorf("unexpected sql: %s", db.calls[0].sql)
	}
}

func TestUpdateAccountStatus(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	change := domain.StatusChange{
		From:   []domain.AccountStatus{domain.StatusDormant, domain.StatusLocked},
		To:     domain.StatusActive,
		Reason: "auto-heal",
		At:     at,
	}

	t.Run("applied", func(t *testing.T) {
		db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
		ok, err := newStore(db).UpdateAccountStatus(context.Background(), 1, change)
		if err != nil || !ok {
			t.Fatalf("expected applied write, got ok=%v err=%v", ok, err)
		}
		from, _ := db.calls[0].args[5].([]string)
		if len(from) != 2 || from[0] != "dormant" {
			t.Errorf("unexpected from-status arg: %v", db.calls[0].args[5])
		}
	})

	t.Run("compare-and-set miss", func(t *testing.T) {
		db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0"), row: []any{true}}
		ok, err := newStore(db).UpdateAccountStatus(context.Background(), 1, change)
		if err != nil || ok {
			t.Fatalf("expected no-op, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("missing account", func(t *testing.T) {
		db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0"), row: []any{false}}
		_, err := newStore(db).UpdateAccountStatus(context.Background(), 1, change)
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestQueryFailure_WrappedAsExternalService(t *testing.T) {
	db := &fakeDB{queryErr: errors.New("connection reset")}
	s := newStore(db)

	_, err := s.ListLeads(context.Background())
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Service != "postgres" {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if len(db.calls) != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", len(db.calls))
	}
}
