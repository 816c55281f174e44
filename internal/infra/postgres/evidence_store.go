package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// Reservations (travelers aggregated in one round-trip)
// ============================================================

const reservationSelect = `
	SELECT r.id, r.account_id, r.amount_minor, r.created_at,
	       COALESCE(
	         json_agg(json_build_object(
	           'name', t.name,
	           'passportNumber', t.passport_number,
	           'passportExpiry', t.passport_expiry
	         ) ORDER BY t.position) FILTER (WHERE t.reservation_id IS NOT NULL),
	         '[]'::json
	       ) AS travelers
	FROM reservations r
	LEFT JOIN reservation_travelers t ON t.reservation_id = r.id`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	var travelers []byte
	if err := row.Scan(&r.ID, &r.AccountID, &r.AmountMinor, &r.CreatedAt, &travelers); err != nil {
		return domain.Reservation{}, err
	}
	if err := json.Unmarshal(travelers, &r.Travelers); err != nil {
		return domain.Reservation{}, fmt.Errorf("decode travelers of reservation %d: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) ListReservationsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.Reservation, error) {
	return list(ctx, s, "list_reservations_by_accounts", scanReservation,
		reservationSelect+`
		WHERE r.account_id = ANY($1)
		GROUP BY r.id
		ORDER BY r.id`, accountIDs)
}

func (s *Store) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	return list(ctx, s, "list_reservations", scanReservation,
		reservationSelect+`
		GROUP BY r.id
		ORDER BY r.id`)
}

// ============================================================
// Refunds
// ============================================================

func scanRefund(row pgx.Row) (domain.RefundRecord, error) {
	var r domain.RefundRecord
	err := row.Scan(&r.AccountID, &r.AmountMinor, &r.RefundedAt)
	return r, err
}

func (s *Store) ListRefundsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.RefundRecord, error) {
	return list(ctx, s, "list_refunds_by_accounts", scanRefund, `
		SELECT account_id, amount_minor, refunded_at FROM refunds
		WHERE account_id = ANY($1)
		ORDER BY id`, accountIDs)
}

func (s *Store) ListRefunds(ctx context.Context) ([]domain.RefundRecord, error) {
	return list(ctx, s, "list_refunds", scanRefund, `
		SELECT account_id, amount_minor, refunded_at FROM refunds ORDER BY id`)
}

// ============================================================
// Leads
// ============================================================

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var status string
	err := row.Scan(&l.ID, &l.Phone, &l.AssignedAgentID, &l.AssignedManagerID, &status, &l.CreatedAt)
	l.Status = domain.LeadStatus(status)
	return l, err
}

func (s *Store) FindLeadsByPhone(ctx context.Context, phone string) ([]domain.Lead, error) {
	return list(ctx, s, "find_leads_by_phone", scanLead, `
		SELECT id, phone, assigned_agent_id, assigned_manager_id, status, created_at FROM leads
		WHERE phone_normalized = $1
		ORDER BY id`, phone)
}

func (s *Store) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	return list(ctx, s, "list_leads", scanLead, `
		SELECT id, phone, assigned_agent_id, assigned_manager_id, status, created_at FROM leads
		ORDER BY id`)
}

// ============================================================
// Funnel registrations and landing-page shares
// ============================================================

func scanRegistration(row pgx.Row) (domain.FunnelRegistration, error) {
	var r domain.FunnelRegistration
	err := row.Scan(&r.ID, &r.Phone, &r.LandingPageID, &r.AccountID, &r.CreatedAt)
	return r, err
}

func (s *Store) FindRegistrationsByPhone(ctx context.Context, phone string) ([]domain.FunnelRegistration, error) {
	return list(ctx, s, "find_registrations_by_phone", scanRegistration, `
		SELECT id, phone, landing_page_id, account_id, created_at FROM funnel_registrations
		WHERE phone_normalized = $1
		ORDER BY id`, phone)
}

func (s *Store) ListRegistrations(ctx context.Context) ([]domain.FunnelRegistration, error) {
	return list(ctx, s, "list_registrations", scanRegistration, `
		SELECT id, phone, landing_page_id, account_id, created_at FROM funnel_registrations
		ORDER BY id`)
}

func scanShare(row pgx.Row) (domain.LandingPageShare, error) {
	var sh domain.LandingPageShare
	err := row.Scan(&sh.LandingPageID, &sh.ManagerID)
	return sh, err
}

func (s *Store) ListSharesByLandingPages(ctx context.Context, landingPageIDs []int64) ([]domain.LandingPageShare, error) {
	return list(ctx, s, "list_shares_by_landing_pages", scanShare, `
		SELECT landing_page_id, manager_id FROM landing_page_shares
		WHERE landing_page_id = ANY($1)
		ORDER BY landing_page_id, manager_id`, landingPageIDs)
}

func (s *Store) ListShares(ctx context.Context) ([]domain.LandingPageShare, error) {
	return list(ctx, s, "list_shares", scanShare, `
		SELECT landing_page_id, manager_id FROM landing_page_shares
		ORDER BY landing_page_id, manager_id`)
}

// ============================================================
// Affiliate directory
// ============================================================

func scanProfile(row pgx.Row) (domain.AffiliateProfile, error) {
	var p domain.AffiliateProfile
	var role string
	if err := row.Scan(&p.ID, &role, &p.Status, &p.DisplayName, &p.Branch, &p.Phone); err != nil {
		return domain.AffiliateProfile{}, err
	}
	if r, ok := domain.ParseAffiliateRole(role); ok {
		p.Role = r
	}
	return p, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []int64) ([]domain.AffiliateProfile, error) {
	return list(ctx, s, "get_profiles", scanProfile, `
		SELECT id, role, status, display_name, branch, phone FROM affiliate_profiles
		WHERE id = ANY($1)
		ORDER BY id`, ids)
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.AffiliateProfile, error) {
	return list(ctx, s, "list_profiles", scanProfile, `
		SELECT id, role, status, display_name, branch, phone FROM affiliate_profiles
		ORDER BY id`)
}

func scanRelation(row pgx.Row) (domain.AffiliateRelation, error) {
	var r domain.AffiliateRelation
	err := row.Scan(&r.ManagerID, &r.AgentID, &r.Status)
	return r, err
}

func (s *Store) ListRelationsByAgents(ctx context.Context, agentIDs []int64) ([]domain.AffiliateRelation, error) {
	return list(ctx, s, "list_relations_by_agents", scanRelation, `
		SELECT manager_id, agent_id, status FROM affiliate_relations
		WHERE agent_id = ANY($1)
		ORDER BY manager_id, agent_id`, agentIDs)
}

func (s *Store) ListRelations(ctx context.Context) ([]domain.AffiliateRelation, error) {
	return list(ctx, s, "list_relations", scanRelation, `
		SELECT manager_id, agent_id, status FROM affiliate_relations
		ORDER BY manager_id, agent_id`)
}

// list runs a read query under the store's guard and scans every row.
func list[T any](ctx context.Context, s *Store, op string, scan func(pgx.Row) (T, error), sql string, args ...any) ([]T, error) {
	var out []T
	err := s.run(ctx, op, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		out, err = collect(rows, scan)
		return err
	})
	return out, err
}
