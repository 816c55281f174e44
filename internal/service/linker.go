package service

import (
	"context"
	"slices"
	"sort"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Linker resolves the cross-namespace counterpart of a single account.
//
// Pairing runs in three tiers over the whole population: guide
// cross-references, then marketplace cross-references into guides that
// carry none of their own, then phone matches between accounts that no
// cross-reference binds. A valid cross-reference settles the question for
// both accounts it touches; neither is ever paired by phone, even when the
// referenced account is gone. Link answers for one account exactly as
// LinkBatch does for the population.
type Linker struct {
	accounts port.AccountReader
	phones   port.PhoneNormalizer
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewLinker(accounts port.AccountReader, phones port.PhoneNormalizer, metrics *observability.Metrics, logger *zap.Logger) *Linker {
	return &Linker{accounts: accounts, phones: phones, metrics: metrics, logger: logger}
}

// Link builds the canonical customer for account. The returned flag is set
// when a lookup failed and the customer may be missing its counterpart.
func (l *Linker) Link(ctx context.Context, account domain.Account) (domain.CanonicalCustomer, bool) {
	ctx, span := tracer.Start(ctx, "Linker.Link")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", account.ID))

	opposite, ok := account.Namespace.Opposite()
	if !ok {
		return Merge(account, nil, domain.LinkNone, false), false
	}

	var (
		cp      *domain.Account
		method  domain.LinkMethod
		settled bool
		err     error
	)
	if account.Namespace == domain.NamespaceGuide {
		cp, method, settled, err = l.guideReference(ctx, account)
	} else {
		cp, method, settled, err = l.marketplaceReference(ctx, account)
	}
	if err != nil {
		l.logger.Warn("cross-reference lookup failed",
			zap.Int64("account_id", account.ID),
			zap.String("cross_ref", account.CrossRef),
			zap.Error(err),
		)
		return Merge(account, nil, domain.LinkNone, false), true
	}
	if settled {
		return Merge(account, cp, method, false), false
	}

	cp, candidates, err := l.phoneMatch(ctx, account, opposite)
	if err != nil {
		l.logger.Warn("phone lookup failed", zap.Int64("account_id", account.ID), zap.Error(err))
		return Merge(account, nil, domain.LinkNone, false), true
	}
	if cp == nil {
		return Merge(account, nil, domain.LinkNone, false), false
	}
	ambiguous := len(candidates) > 1
	if ambiguous {
		l.reportAmbiguous(account, l.phones.Normalize(account.Phone), candidates, cp.ID)
	}
	return Merge(account, cp, domain.LinkPhone, ambiguous), false
}

// guideReference settles a guide through cross-references. settled is false
// only when no cross-reference touches the guide.
func (l *Linker) guideReference(ctx context.Context, g domain.Account) (*domain.Account, domain.LinkMethod, bool, error) {
	if ref, ok := counterpartRef(g, domain.NamespaceMarketplace); ok {
		m, err := l.accounts.GetAccount(ctx, ref.ID)
		if err != nil {
			if isNotFound(err) {
				return nil, domain.LinkNone, true, nil
			}
			return nil, domain.LinkNone, true, err
		}
		if m.Namespace != domain.NamespaceMarketplace {
			return nil, domain.LinkNone, true, nil
		}
		// The lowest guide referencing m owns it.
		claimants, err := l.referrers(ctx, *m)
		if err != nil {
			return nil, domain.LinkNone, true, err
		}
		if len(claimants) == 0 || claimants[0].ID != g.ID {
			return nil, domain.LinkNone, true, nil
		}
		return m, domain.LinkCrossReference, true, nil
	}

	back, err := l.referrers(ctx, g)
	if err != nil {
		return nil, domain.LinkNone, true, err
	}
	if len(back) == 0 {
		return nil, domain.LinkNone, false, nil
	}
	for i := range back {
		taken, err := l.referrers(ctx, back[i])
		if err != nil {
			return nil, domain.LinkNone, true, err
		}
		if len(taken) == 0 {
			return &back[i], domain.LinkReverseReference, true, nil
		}
	}
	return nil, domain.LinkNone, true, nil
}

// marketplaceReference mirrors guideReference from the marketplace side.
func (l *Linker) marketplaceReference(ctx context.Context, m domain.Account) (*domain.Account, domain.LinkMethod, bool, error) {
	guides, err := l.referrers(ctx, m)
	if err != nil {
		return nil, domain.LinkNone, true, err
	}
	if len(guides) > 0 {
		return &guides[0], domain.LinkReverseReference, true, nil
	}

	ref, ok := counterpartRef(m, domain.NamespaceGuide)
	if !ok {
		return nil, domain.LinkNone, false, nil
	}
	g, err := l.accounts.GetAccount(ctx, ref.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.LinkNone, true, nil
		}
		return nil, domain.LinkNone, true, err
	}
	if g.Namespace != domain.NamespaceGuide {
		return nil, domain.LinkNone, true, nil
	}
	if _, own := counterpartRef(*g, domain.NamespaceMarketplace); own {
		return nil, domain.LinkNone, true, nil
	}

	rivals, err := l.referrers(ctx, *g)
	if err != nil {
		return nil, domain.LinkNone, true, err
	}
	for _, r := range rivals {
		taken, err := l.referrers(ctx, r)
		if err != nil {
			return nil, domain.LinkNone, true, err
		}
		if len(taken) > 0 {
			continue
		}
		if r.ID == m.ID {
			return g, domain.LinkCrossReference, true, nil
		}
		break
	}
	return nil, domain.LinkNone, true, nil
}

// referrers returns the accounts whose valid cross-reference points at a,
// in ascending id order.
func (l *Linker) referrers(ctx context.Context, a domain.Account) ([]domain.Account, error) {
	opposite, ok := a.Namespace.Opposite()
	if !ok {
		return nil, nil
	}
	found, err := l.accounts.FindAccountsByCrossReference(ctx, a.Ref())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(found))
	for _, r := range found {
		if r.Namespace != opposite {
			continue
		}
		if ref, ok := counterpartRef(r, a.Namespace); ok && ref.ID == a.ID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// bound reports whether a cross-reference touches a, from either side.
func (l *Linker) bound(ctx context.Context, a domain.Account) (bool, error) {
	if opposite, ok := a.Namespace.Opposite(); ok {
		if _, ok := counterpartRef(a, opposite); ok {
			return true, nil
		}
	}
	back, err := l.referrers(ctx, a)
	if err != nil {
		return false, err
	}
	return len(back) > 0, nil
}

// phoneGroup returns the unbound accounts of ns sharing phone, ascending.
func (l *Linker) phoneGroup(ctx context.Context, ns domain.Namespace, phone string) ([]domain.Account, error) {
	found, err := l.accounts.FindAccountsByPhone(ctx, ns, phone)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(found))
	for _, a := range found {
		if a.Namespace != ns {
			continue
		}
		b, err := l.bound(ctx, a)
		if err != nil {
			return nil, err
		}
		if !b {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// phoneMatch pairs an unbound account by phone. Within one phone number the
// n-th guide takes the n-th marketplace account, which is what LinkBatch's
// ascending lowest-id claim produces. candidates are the marketplace ids
// still open when the pair was made.
func (l *Linker) phoneMatch(ctx context.Context, a domain.Account, opposite domain.Namespace) (*domain.Account, []int64, error) {
	phone := l.phones.Normalize(a.Phone)
	if phone == "" {
		return nil, nil, nil
	}
	own, err := l.phoneGroup(ctx, a.Namespace, phone)
	if err != nil {
		return nil, nil, err
	}
	idx := slices.IndexFunc(own, func(o domain.Account) bool { return o.ID == a.ID })
	if idx < 0 {
		return nil, nil, nil
	}
	other, err := l.phoneGroup(ctx, opposite, phone)
	if err != nil {
		return nil, nil, err
	}
	if idx >= len(other) {
		return nil, nil, nil
	}

	markets := other
	if a.Namespace == domain.NamespaceMarketplace {
		markets = own
	}
	candidates := make([]int64, 0, len(markets)-idx)
	for _, m := range markets[idx:] {
		candidates = append(candidates, m.ID)
	}
	return &other[idx], candidates, nil
}

func (l *Linker) reportAmbiguous(account domain.Account, phone string, candidates []int64, chosen int64) {
	l.metrics.IncrAmbiguousMatch()
	err := &domain.ErrAmbiguousMatch{AccountID: account.ID, Phone: phone, Candidates: candidates, Chosen: chosen}
	l.logger.Warn("ambiguous phone match", zap.Error(err))
}

// LinkBatch links a whole account population. Guide cross-references claim
// first, then marketplace cross-references, then phone matches among
// accounts no cross-reference touches; each tier walks accounts in
// ascending id order and each account is claimed at most once. Unclaimed
// accounts become single-account customers. The second return value counts
// ambiguous phone matches.
func LinkBatch(accounts []domain.Account, phones port.PhoneNormalizer) ([]domain.CanonicalCustomer, int) {
	sorted := make([]domain.Account, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int64]*domain.Account, len(sorted))
	byPhone := make(map[phoneKey][]*domain.Account)
	for i := range sorted {
		a := &sorted[i]
		byID[a.ID] = a
		if p := phones.Normalize(a.Phone); p != "" {
			k := phoneKey{ns: a.Namespace, phone: p}
			byPhone[k] = append(byPhone[k], a)
		}
	}

	bound := make(map[int64]bool)
	for i := range sorted {
		a := &sorted[i]
		opposite, ok := a.Namespace.Opposite()
		if !ok {
			continue
		}
		ref, ok := counterpartRef(*a, opposite)
		if !ok {
			continue
		}
		bound[a.ID] = true
		if t := byID[ref.ID]; t != nil && t.Namespace == opposite {
			bound[t.ID] = true
		}
	}

	claimed := make(map[int64]bool)
	customers := make([]domain.CanonicalCustomer, 0, len(sorted))
	ambiguous := 0
	pair := func(g, m *domain.Account, method domain.LinkMethod, amb bool) {
		claimed[g.ID] = true
		claimed[m.ID] = true
		customers = append(customers, Merge(*g, m, method, amb))
	}

	for i := range sorted {
		g := &sorted[i]
		if g.Namespace != domain.NamespaceGuide {
			continue
		}
		ref, ok := counterpartRef(*g, domain.NamespaceMarketplace)
		if !ok {
			continue
		}
		if m := byID[ref.ID]; m != nil && m.Namespace == domain.NamespaceMarketplace && !claimed[m.ID] {
			pair(g, m, domain.LinkCrossReference, false)
		}
	}

	for i := range sorted {
		m := &sorted[i]
		if m.Namespace != domain.NamespaceMarketplace || claimed[m.ID] {
			continue
		}
		ref, ok := counterpartRef(*m, domain.NamespaceGuide)
		if !ok {
			continue
		}
		g := byID[ref.ID]
		if g == nil || g.Namespace != domain.NamespaceGuide || claimed[g.ID] {
			continue
		}
		if _, own := counterpartRef(*g, domain.NamespaceMarketplace); own {
			continue
		}
		pair(g, m, domain.LinkReverseReference, false)
	}

	for i := range sorted {
		g := &sorted[i]
		if g.Namespace != domain.NamespaceGuide || claimed[g.ID] || bound[g.ID] {
			continue
		}
		p := phones.Normalize(g.Phone)
		if p == "" {
			continue
		}
		var open []int64
		var best *domain.Account
		for _, c := range byPhone[phoneKey{ns: domain.NamespaceMarketplace, phone: p}] {
			if bound[c.ID] || claimed[c.ID] {
				continue
			}
			open = append(open, c.ID)
			if best == nil {
				best = c
			}
		}
		if best == nil {
			continue
		}
		if len(open) > 1 {
			ambiguous++
		}
		pair(g, best, domain.LinkPhone, len(open) > 1)
	}

	for _, a := range sorted {
		if !claimed[a.ID] {
			customers = append(customers, Merge(a, nil, domain.LinkNone, false))
		}
	}
	return customers, ambiguous
}

// Merge combines an account with its counterpart. The guide account becomes
// the primary and its non-empty fields win.
func Merge(account domain.Account, counterpart *domain.Account, method domain.LinkMethod, ambiguous bool) domain.CanonicalCustomer {
	if counterpart == nil {
		return domain.CanonicalCustomer{
			Primary:    account,
			LinkMethod: domain.LinkNone,
			Name:       account.Name,
			Phone:      account.Phone,
			Email:      account.Email,
		}
	}

	primary, secondary := account, *counterpart
	if secondary.Namespace == domain.NamespaceGuide {
		primary, secondary = secondary, primary
	}
	return domain.CanonicalCustomer{
		Primary:     primary,
		Counterpart: &secondary,
		LinkMethod:  method,
		Ambiguous:   ambiguous,
		Name:        firstNonEmpty(primary.Name, secondary.Name),
		Phone:       firstNonEmpty(primary.Phone, secondary.Phone),
		Email:       firstNonEmpty(primary.Email, secondary.Email),
	}
}

type phoneKey struct {
	ns    domain.Namespace
	phone string
}

// counterpartRef returns the parsed cross-reference when it points into the
// opposite namespace. Anything else counts as no cross-reference.
func counterpartRef(a domain.Account, opposite domain.Namespace) (domain.AccountRef, bool) {
	if a.CrossRef == "" {
		return domain.AccountRef{}, false
	}
	ref, err := domain.ParseAccountRef(a.CrossRef)
	if err != nil || ref.Namespace != opposite || ref.ID == a.ID {
		return domain.AccountRef{}, false
	}
	return ref, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
