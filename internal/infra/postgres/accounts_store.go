package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/resilience"

	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, namespace, name, phone, email, cross_ref_namespace, cross_ref_id,
	source, status, status_reason, status_changed_at, locked, hibernated,
	trial_started_at, purchase_confirmed, refunded, last_active_at, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var ns, src, st string
	var refNS *string
	var refID *int64
	if err := row.Scan(
		&a.ID, &ns, &a.Name, &a.Phone, &a.Email, &refNS, &refID,
		&src, &st, &a.StatusReason, &a.StatusChangedAt, &a.Locked, &a.Hibernated,
		&a.TrialStartedAt, &a.PurchaseConfirmed, &a.Refunded, &a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return domain.Account{}, err
	}

	a.Namespace = domain.NamespaceOther
	if n, ok := domain.ParseNamespace(ns); ok {
		a.Namespace = n
	}
	if tag, ok := domain.ParseSourceTag(src); ok {
		a.Source = tag
	}
	if status, ok := domain.ParseAccountStatus(st); ok {
		a.Status = status
	}
	if refNS != nil && refID != nil {
		a.CrossRef = fmt.Sprintf("%s:%d", *refNS, *refID)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var acc domain.Account
	err := s.run(ctx, "get_account", func(ctx context.Context) error {
		a, err := scanAccount(s.db.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)})
		}
		acc = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) FindAccountsByPhone(ctx context.Context, ns domain.Namespace, phone string) ([]domain.Account, error) {
	return list(ctx, s, "find_accounts_by_phone", scanAccount,
		`SELECT `+accountColumns+` FROM accounts
		WHERE namespace = $1 AND phone_normalized = $2
		ORDER BY id`, string(ns), phone)
}

func (s *Store) FindAccountsByCrossReference(ctx context.Context, ref domain.AccountRef) ([]domain.Account, error) {
	return list(ctx, s, "find_accounts_by_cross_reference", scanAccount,
		`SELECT `+accountColumns+` FROM accounts
		WHERE cross_ref_namespace = $1 AND cross_ref_id = $2
		ORDER BY id`, string(ref.Namespace), ref.ID)
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return list(ctx, s, "list_accounts", scanAccount,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

// UpdateAccountStatus is a compare-and-set on the stored status.
func (s *Store) UpdateAccountStatus(ctx context.Context, id int64, change domain.StatusChange) (bool, error) {
	from := make([]string, 0, len(change.From))
	for _, st := range change.From {
		from = append(from, string(st))
	}

	var updated bool
	err := s.run(ctx, "update_account_status", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			UPDATE accounts
			SET status = $2, status_reason = $3, status_changed_at = $4, updated_at = $4,
			    last_active_at = COALESCE($5, last_active_at)
			WHERE id = $1 AND (cardinality($6::text[]) = 0 OR status = ANY($6::text[]))
		`, id, string(change.To), change.Reason, change.At, change.LastActiveAt, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			updated = true
			return nil
		}

		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)})
		}
		return nil
	})
	return updated, err
}
