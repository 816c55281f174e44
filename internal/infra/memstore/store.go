// Package memstore is an in-memory evidence store. It backs local
// development, the CLI's --memory mode and tests, and keeps the same
// indexes the database relies on: accounts by normalized phone and the
// reverse cross-reference index.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/port"
)

// Snapshot is the serialisable representation of the store, used for fixtures.
type Snapshot struct {
	Accounts      []domain.Account            `json:"accounts"`
	Reservations  []domain.Reservation        `json:"reservations"`
	Refunds       []domain.RefundRecord       `json:"refunds"`
	Leads         []domain.Lead               `json:"leads"`
	Profiles      []domain.AffiliateProfile   `json:"profiles"`
	Relations     []domain.AffiliateRelation  `json:"relations"`
	Shares        []domain.LandingPageShare   `json:"shares"`
	Registrations []domain.FunnelRegistration `json:"registrations"`
}

type phoneKey struct {
	ns    domain.Namespace
	phone string
}

// Store implements port.EvidenceStore in memory.
type Store struct {
	mu         sync.RWMutex
	normalizer port.PhoneNormalizer

	accounts map[int64]domain.Account
	byPhone  map[phoneKey][]int64
	reverse  map[domain.AccountRef][]int64

	reservations  []domain.Reservation
	refunds       []domain.RefundRecord
	leads         []domain.Lead
	profiles      map[int64]domain.AffiliateProfile
	relations     []domain.AffiliateRelation
	shares        []domain.LandingPageShare
	registrations []domain.FunnelRegistration
}

// New creates an empty store.
func New(normalizer port.PhoneNormalizer) *Store {
	return &Store{
		normalizer: normalizer,
		accounts:   make(map[int64]domain.Account),
		byPhone:    make(map[phoneKey][]int64),
		reverse:    make(map[domain.AccountRef][]int64),
		profiles:   make(map[int64]domain.AffiliateProfile),
	}
}

// NewFromSnapshot creates a store pre-populated with snap.
func NewFromSnapshot(normalizer port.PhoneNormalizer, snap Snapshot) *Store {
	s := New(normalizer)
	for _, a := range snap.Accounts {
		s.PutAccount(a)
	}
	for _, r := range snap.Reservations {
		s.AddReservation(r)
	}
	for _, r := range snap.Refunds {
		s.AddRefund(r)
	}
	for _, l := range snap.Leads {
		s.AddLead(l)
	}
	for _, p := range snap.Profiles {
		s.PutProfile(p)
	}
	for _, r := range snap.Relations {
		s.AddRelation(r)
	}
	for _, sh := range snap.Shares {
		s.AddShare(sh)
	}
	for _, r := range snap.Registrations {
		s.AddRegistration(r)
	}
	return s
}

// LoadFile reads a JSON Snapshot from path.
func LoadFile(path string, normalizer port.PhoneNormalizer) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return NewFromSnapshot(normalizer, snap), nil
}

// ============================================================
// Writes (fixtures and tests)
// ============================================================

// PutAccount inserts or replaces an account and maintains both indexes.
func (s *Store) PutAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.accounts[a.ID]; ok {
		s.unindex(old)
	}
	s.accounts[a.ID] = a
	s.index(a)
}

func (s *Store) index(a domain.Account) {
	if p := s.normalizer.Normalize(a.Phone); p != "" {
		k := phoneKey{ns: a.Namespace, phone: p}
		s.byPhone[k] = insertSorted(s.byPhone[k], a.ID)
	}
	if ref, err := domain.ParseAccountRef(a.CrossRef); err == nil {
		s.reverse[ref] = insertSorted(s.reverse[ref], a.ID)
	}
}

func (s *Store) unindex(a domain.Account) {
	if p := s.normalizer.Normalize(a.Phone); p != "" {
		k := phoneKey{ns: a.Namespace, phone: p}
		s.byPhone[k] = remove(s.byPhone[k], a.ID)
	}
	if ref, err := domain.ParseAccountRef(a.CrossRef); err == nil {
		s.reverse[ref] = remove(s.reverse[ref], a.ID)
	}
}

func (s *Store) AddReservation(r domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
}

func (s *Store) AddRefund(r domain.RefundRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, r)
}

func (s *Store) AddLead(l domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, l)
}

func (s *Store) PutProfile(p domain.AffiliateProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *Store) AddRelation(r domain.AffiliateRelation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, r)
}

func (s *Store) AddShare(sh domain.LandingPageShare) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares = append(s.shares, sh)
}

func (s *Store) AddRegistration(r domain.FunnelRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations = append(s.registrations, r)
}

// ============================================================
// port.AccountStore
// ============================================================

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)}
	}
	return &a, nil
}

func (s *Store) FindAccountsByPhone(ctx context.Context, ns domain.Namespace, phone string) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPhone[phoneKey{ns: ns, phone: phone}]), nil
}

func (s *Store) FindAccountsByCrossReference(ctx context.Context, ref domain.AccountRef) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.reverse[ref]), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id int64, change domain.StatusChange) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return false, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(id, 10)}
	}
	if len(change.From) > 0 && !slices.Contains(change.From, a.Status) {
		return false, nil
	}

	at := change.At
	a.Status = change.To
	a.StatusReason = change.Reason
	a.StatusChangedAt = &at
	a.UpdatedAt = at
	if change.LastActiveAt != nil {
		t := *change.LastActiveAt
		a.LastActiveAt = &t
	}
	s.accounts[id] = a
	return true, nil
}

func (s *Store) collect(ids []int64) []domain.Account {
	out := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ============================================================
// Evidence reads
// ============================================================

func (s *Store) ListReservationsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.reservations, func(r domain.Reservation) bool {
		return slices.Contains(accountIDs, r.AccountID)
	}), nil
}

func (s *Store) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.reservations), nil
}

func (s *Store) ListRefundsByAccounts(ctx context.Context, accountIDs []int64) ([]domain.RefundRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.refunds, func(r domain.RefundRecord) bool {
		return slices.Contains(accountIDs, r.AccountID)
	}), nil
}

func (s *Store) ListRefunds(ctx context.Context) ([]domain.RefundRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.refunds), nil
}

func (s *Store) FindLeadsByPhone(ctx context.Context, phone string) ([]domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.leads, func(l domain.Lead) bool {
		return phone != "" && s.normalizer.Normalize(l.Phone) == phone
	}), nil
}

func (s *Store) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.leads), nil
}

func (s *Store) FindRegistrationsByPhone(ctx context.Context, phone string) ([]domain.FunnelRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.registrations, func(r domain.FunnelRegistration) bool {
		return phone != "" && s.normalizer.Normalize(r.Phone) == phone
	}), nil
}

func (s *Store) ListRegistrations(ctx context.Context) ([]domain.FunnelRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.registrations), nil
}

func (s *Store) ListSharesByLandingPages(ctx context.Context, landingPageIDs []int64) ([]domain.LandingPageShare, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.shares, func(sh domain.LandingPageShare) bool {
		return slices.Contains(landingPageIDs, sh.LandingPageID)
	}), nil
}

func (s *Store) ListShares(ctx context.Context) ([]domain.LandingPageShare, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.shares), nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []int64) ([]domain.AffiliateProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AffiliateProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.AffiliateProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AffiliateProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListRelationsByAgents(ctx context.Context, agentIDs []int64) ([]domain.AffiliateRelation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.relations, func(r domain.AffiliateRelation) bool {
		return slices.Contains(agentIDs, r.AgentID)
	}), nil
}

func (s *Store) ListRelations(ctx context.Context) ([]domain.AffiliateRelation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.relations), nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func insertSorted(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

func remove(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, i, i+1)
}

var _ port.EvidenceStore = (*Store)(nil)
