package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Evidence source names, as reported in degradedSources.
const (
	SourceAccounts      = "accounts"
	SourceLinking       = "linking"
	SourceReservations  = "reservations"
	SourceRefunds       = "refunds"
	SourceLeads         = "leads"
	SourceRegistrations = "registrations"
	SourceShares        = "shares"
	SourceRelations     = "relations"
	SourceProfiles      = "profiles"
)

const profileDirectoryKey = "profiles:all"

// Snapshot is the whole evidence population, one store query per type.
type Snapshot struct {
	Accounts      []domain.Account
	Reservations  []domain.Reservation
	Refunds       []domain.RefundRecord
	Leads         []domain.Lead
	Registrations []domain.FunnelRegistration
	Shares        []domain.LandingPageShare
	Relations     []domain.AffiliateRelation
	Profiles      map[int64]domain.AffiliateProfile
	// Degraded lists the sources that failed to load, sorted.
	Degraded []string
}

// EvidenceLoader fetches evidence with bounded parallelism and a timeout per
// source. Only the accounts source is fatal; every other failure is logged
// and reported as degraded.
type EvidenceLoader struct {
	store    port.EvidenceStore
	profiles port.LoadingCache[[]domain.AffiliateProfile]
	phones   port.PhoneNormalizer
	limit    int
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewEvidenceLoader(
	store port.EvidenceStore,
	profiles port.LoadingCache[[]domain.AffiliateProfile],
	phones port.PhoneNormalizer,
	fanOutLimit int,
	sourceTimeout time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *EvidenceLoader {
	if fanOutLimit <= 0 {
		fanOutLimit = 5
	}
	if sourceTimeout <= 0 {
		sourceTimeout = 3 * time.Second
	}
	return &EvidenceLoader{
		store:    store,
		profiles: profiles,
		phones:   phones,
		limit:    fanOutLimit,
		timeout:  sourceTimeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// fanOut runs source fetches on an errgroup. Failures of non-fatal sources
// are collected instead of returned.
type fanOut struct {
	l        *EvidenceLoader
	g        *errgroup.Group
	ctx      context.Context
	mu       sync.Mutex
	degraded []string
}

func (l *EvidenceLoader) newFanOut(ctx context.Context) *fanOut {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)
	return &fanOut{l: l, g: g, ctx: gctx}
}

func (f *fanOut) fetch(source string, fatal bool, fn func(ctx context.Context) error) {
	f.g.Go(func() error {
		ctx, cancel := context.WithTimeout(f.ctx, f.l.timeout)
		defer cancel()

		err := fn(ctx)
		if err == nil {
			return nil
		}
		f.l.metrics.IncrSourceError(source)
		f.l.logger.Warn("evidence source failed",
			zap.String("source", source),
			zap.Bool("fatal", fatal),
			zap.Error(err),
		)
		if fatal {
			return &domain.ErrUpstreamUnavailable{Source: source, Err: err}
		}
		f.mu.Lock()
		f.degraded = append(f.degraded, source)
		f.mu.Unlock()
		return nil
	})
}

func (f *fanOut) wait() ([]string, error) {
	err := f.g.Wait()
	sort.Strings(f.degraded)
	return f.degraded, err
}

// LoadSnapshot loads the full population for listing and reconciliation.
func (l *EvidenceLoader) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "EvidenceLoader.LoadSnapshot")
	defer span.End()

	snap := &Snapshot{}
	f := l.newFanOut(ctx)

	f.fetch(SourceAccounts, true, func(ctx context.Context) (err error) {
		snap.Accounts, err = l.store.ListAccounts(ctx)
		return err
	})
	f.fetch(SourceReservations, false, func(ctx context.Context) (err error) {
		snap.Reservations, err = l.store.ListReservations(ctx)
		return err
	})
	f.fetch(SourceRefunds, false, func(ctx context.Context) (err error) {
		snap.Refunds, err = l.store.ListRefunds(ctx)
		return err
	})
	f.fetch(SourceLeads, false, func(ctx context.Context) (err error) {
		snap.Leads, err = l.store.ListLeads(ctx)
		return err
	})
	f.fetch(SourceRegistrations, false, func(ctx context.Context) (err error) {
		snap.Registrations, err = l.store.ListRegistrations(ctx)
		return err
	})
	f.fetch(SourceShares, false, func(ctx context.Context) (err error) {
		snap.Shares, err = l.store.ListShares(ctx)
		return err
	})
	f.fetch(SourceRelations, false, func(ctx context.Context) (err error) {
		snap.Relations, err = l.store.ListRelations(ctx)
		return err
	})
	f.fetch(SourceProfiles, false, func(ctx context.Context) (err error) {
		snap.Profiles, err = l.profileDirectory(ctx)
		return err
	})

	degraded, err := f.wait()
	if err != nil {
		return nil, err
	}
	snap.Degraded = degraded
	return snap, nil
}

// LoadForCustomer loads the evidence of a single linked customer: a first
// wave keyed by account ids and phones, then the relations, shares and
// profiles those records point at.
func (l *EvidenceLoader) LoadForCustomer(ctx context.Context, c *domain.CanonicalCustomer) (domain.CustomerEvidence, []string) {
	ctx, span := tracer.Start(ctx, "EvidenceLoader.LoadForCustomer")
	defer span.End()

	ids := c.AccountIDs()
	phones := l.customerPhones(c)

	var ev domain.CustomerEvidence
	f := l.newFanOut(ctx)
	f.fetch(SourceReservations, false, func(ctx context.Context) (err error) {
		ev.Reservations, err = l.store.ListReservationsByAccounts(ctx, ids)
		return err
	})
	f.fetch(SourceRefunds, false, func(ctx context.Context) (err error) {
		ev.Refunds, err = l.store.ListRefundsByAccounts(ctx, ids)
		return err
	})
	f.fetch(SourceLeads, false, func(ctx context.Context) error {
		leads, err := forEachPhone(ctx, phones, l.store.FindLeadsByPhone)
		ev.Leads = dedupeLeads(leads)
		return err
	})
	f.fetch(SourceRegistrations, false, func(ctx context.Context) error {
		regs, err := forEachPhone(ctx, phones, l.store.FindRegistrationsByPhone)
		ev.Registrations = dedupeRegistrations(regs)
		return err
	})
	f.fetch(SourceProfiles, false, func(ctx context.Context) (err error) {
		ev.Profiles, err = l.profileDirectory(ctx)
		return err
	})
	degraded, _ := f.wait()

	pages := registrationPages(ev.Registrations, ids)
	agents := leadAgents(ev.Leads)
	if len(pages) > 0 || len(agents) > 0 {
		f = l.newFanOut(ctx)
		if len(pages) > 0 {
			f.fetch(SourceShares, false, func(ctx context.Context) (err error) {
				ev.Shares, err = l.store.ListSharesByLandingPages(ctx, pages)
				return err
			})
		}
		if len(agents) > 0 {
			f.fetch(SourceRelations, false, func(ctx context.Context) (err error) {
				ev.Relations, err = l.store.ListRelationsByAgents(ctx, agents)
				return err
			})
		}
		more, _ := f.wait()
		degraded = append(degraded, more...)
		sort.Strings(degraded)
	}
	if ev.Profiles == nil {
		ev.Profiles = map[int64]domain.AffiliateProfile{}
	}
	return ev, degraded
}

// profileDirectory returns the affiliate directory, cached across requests.
func (l *EvidenceLoader) profileDirectory(ctx context.Context) (map[int64]domain.AffiliateProfile, error) {
	profiles, hit, err := l.profiles.GetOrLoad(ctx, profileDirectoryKey, l.store.ListProfiles)
	if err != nil {
		return nil, err
	}
	if hit {
		l.metrics.IncrCacheHit(SourceProfiles)
	} else {
		l.metrics.IncrCacheMiss(SourceProfiles)
	}
	dir := make(map[int64]domain.AffiliateProfile, len(profiles))
	for _, p := range profiles {
		dir[p.ID] = p
	}
	return dir, nil
}

// customerPhones returns the distinct normalized phones of the backing accounts.
func (l *EvidenceLoader) customerPhones(c *domain.CanonicalCustomer) []string {
	var phones []string
	for _, a := range c.Accounts() {
		p := l.phones.Normalize(a.Phone)
		if p != "" && !containsString(phones, p) {
			phones = append(phones, p)
		}
	}
	return phones
}

func forEachPhone[T any](ctx context.Context, phones []string, find func(context.Context, string) ([]T, error)) ([]T, error) {
	var out []T
	var errs []error
	for _, p := range phones {
		items, err := find(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, items...)
	}
	return out, errors.Join(errs...)
}

// ============================================================
// In-memory join for the batch path
// ============================================================

// evidenceIndex joins a Snapshot to customers without further store calls.
type evidenceIndex struct {
	phones        port.PhoneNormalizer
	reservations  map[int64][]domain.Reservation
	refunds       map[int64][]domain.RefundRecord
	leads         map[string][]domain.Lead
	registrations map[string][]domain.FunnelRegistration
	shares        map[int64][]domain.LandingPageShare
	relations     map[int64][]domain.AffiliateRelation
	profiles      map[int64]domain.AffiliateProfile
}

func newEvidenceIndex(snap *Snapshot, phones port.PhoneNormalizer) *evidenceIndex {
	ix := &evidenceIndex{
		phones:        phones,
		reservations:  make(map[int64][]domain.Reservation),
		refunds:       make(map[int64][]domain.RefundRecord),
		leads:         make(map[string][]domain.Lead),
		registrations: make(map[string][]domain.FunnelRegistration),
		shares:        make(map[int64][]domain.LandingPageShare),
		relations:     make(map[int64][]domain.AffiliateRelation),
		profiles:      snap.Profiles,
	}
	if ix.profiles == nil {
		ix.profiles = map[int64]domain.AffiliateProfile{}
	}
	for _, r := range snap.Reservations {
		ix.reservations[r.AccountID] = append(ix.reservations[r.AccountID], r)
	}
	for _, r := range snap.Refunds {
		ix.refunds[r.AccountID] = append(ix.refunds[r.AccountID], r)
	}
	for _, l := range snap.Leads {
		if p := phones.Normalize(l.Phone); p != "" {
			ix.leads[p] = append(ix.leads[p], l)
		}
	}
	for _, r := range snap.Registrations {
		if p := phones.Normalize(r.Phone); p != "" {
			ix.registrations[p] = append(ix.registrations[p], r)
		}
	}
	for _, sh := range snap.Shares {
		ix.shares[sh.LandingPageID] = append(ix.shares[sh.LandingPageID], sh)
	}
	for _, rel := range snap.Relations {
		ix.relations[rel.AgentID] = append(ix.relations[rel.AgentID], rel)
	}
	return ix
}

// evidenceFor builds the same CustomerEvidence LoadForCustomer would fetch.
func (ix *evidenceIndex) evidenceFor(c *domain.CanonicalCustomer) domain.CustomerEvidence {
	ev := domain.CustomerEvidence{Profiles: ix.profiles}
	ids := c.AccountIDs()
	for _, id := range ids {
		ev.Reservations = append(ev.Reservations, ix.reservations[id]...)
		ev.Refunds = append(ev.Refunds, ix.refunds[id]...)
	}

	var phones []string
	for _, a := range c.Accounts() {
		p := ix.phones.Normalize(a.Phone)
		if p == "" || containsString(phones, p) {
			continue
		}
		phones = append(phones, p)
		ev.Leads = append(ev.Leads, ix.leads[p]...)
		ev.Registrations = append(ev.Registrations, ix.registrations[p]...)
	}
	ev.Leads = dedupeLeads(ev.Leads)
	ev.Registrations = dedupeRegistrations(ev.Registrations)

	for _, page := range registrationPages(ev.Registrations, ids) {
		ev.Shares = append(ev.Shares, ix.shares[page]...)
	}
	for _, agent := range leadAgents(ev.Leads) {
		ev.Relations = append(ev.Relations, ix.relations[agent]...)
	}
	return ev
}

// registrationPages returns the landing pages of registrations bound to ids.
func registrationPages(regs []domain.FunnelRegistration, ids []int64) []int64 {
	var pages []int64
	for _, r := range regs {
		if r.AccountID == nil || !containsID(ids, *r.AccountID) || containsID(pages, r.LandingPageID) {
			continue
		}
		pages = append(pages, r.LandingPageID)
	}
	return pages
}

func leadAgents(leads []domain.Lead) []int64 {
	var agents []int64
	for _, l := range leads {
		if l.AssignedAgentID != nil && !containsID(agents, *l.AssignedAgentID) {
			agents = append(agents, *l.AssignedAgentID)
		}
	}
	return agents
}

func dedupeLeads(leads []domain.Lead) []domain.Lead {
	seen := make(map[int64]bool, len(leads))
	out := leads[:0:0]
	for _, l := range leads {
		if !seen[l.ID] {
			seen[l.ID] = true
			out = append(out, l)
		}
	}
	return out
}

func dedupeRegistrations(regs []domain.FunnelRegistration) []domain.FunnelRegistration {
	seen := make(map[int64]bool, len(regs))
	out := regs[:0:0]
	for _, r := range regs {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
