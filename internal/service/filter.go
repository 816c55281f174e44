package service

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/phone"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	monthLayout     = "2006-01"
)

// FilterParser turns listing query parameters into a ListFilter. Values that
// do not parse are dropped and reported back instead of failing the request.
type FilterParser struct {
	validate *validator.Validate
}

func NewFilterParser() *FilterParser {
	return &FilterParser{validate: validator.New()}
}

// Parse returns the filter and one ErrInvalidFilter per ignored parameter.
func (p *FilterParser) Parse(q url.Values) (domain.ListFilter, []*domain.ErrInvalidFilter) {
	f := domain.ListFilter{Page: 1, PageSize: DefaultPageSize}
	var ignored []*domain.ErrInvalidFilter
	ignore := func(field, value string) {
		ignored = append(ignored, &domain.ErrInvalidFilter{Field: field, Value: value})
	}

	if v := strings.TrimSpace(q.Get("q")); v != "" {
		if p.check(v, "max=100") {
			f.Query = v
		} else {
			ignore("q", v)
		}
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		if st, ok := domain.ParseAccountStatus(v); ok {
			f.Status = st
		} else {
			ignore("status", v)
		}
	}
	if v := strings.TrimSpace(q.Get("certificate")); v != "" {
		if p.check(v, "oneof=purchase-confirmed refunded") {
			f.Certificate = domain.CertificateType(v)
		} else {
			ignore("certificate", v)
		}
	}
	if v := strings.TrimSpace(q.Get("group")); v != "" {
		if p.check(v, "oneof=all refund purchase trial mall prospects manager-customers agent-customers passport") {
			f.Group = domain.GroupKey(v)
		} else {
			ignore("group", v)
		}
	}
	if v := firstParam(q, "managerId", "manager_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			f.ManagerID = &id
		} else {
			ignore("managerId", v)
		}
	}

	// month is shorthand for a single-month range.
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if m, ok := p.parseMonth(v); ok {
			f.MonthFrom, f.MonthTo = &m, &m
		} else {
			ignore("month", v)
		}
	}
	if v := firstParam(q, "monthFrom", "month_from"); v != "" {
		if m, ok := p.parseMonth(v); ok {
			f.MonthFrom = &m
		} else {
			ignore("monthFrom", v)
		}
	}
	if v := firstParam(q, "monthTo", "month_to"); v != "" {
		if m, ok := p.parseMonth(v); ok {
			f.MonthTo = &m
		} else {
			ignore("monthTo", v)
		}
	}
	if f.MonthFrom != nil && f.MonthTo != nil && f.MonthFrom.After(*f.MonthTo) {
		ignore("monthRange", f.MonthFrom.Format(monthLayout)+".."+f.MonthTo.Format(monthLayout))
		f.MonthFrom, f.MonthTo = nil, nil
	}

	if v := firstParam(q, "page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			f.Page = n
		} else {
			ignore("page", v)
		}
	}
	if v := firstParam(q, "pageSize", "page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= MaxPageSize {
			f.PageSize = n
		} else {
			ignore("pageSize", v)
		}
	}

	sort.Slice(ignored, func(i, j int) bool { return ignored[i].Field < ignored[j].Field })
	return f, ignored
}

// IgnoredFields returns the parameter names of ignored filters.
func IgnoredFields(ignored []*domain.ErrInvalidFilter) []string {
	if len(ignored) == 0 {
		return nil
	}
	fields := make([]string, len(ignored))
	for i, e := range ignored {
		fields[i] = e.Field
	}
	return fields
}

func (p *FilterParser) check(v, tag string) bool {
	return p.validate.Var(v, tag) == nil
}

func (p *FilterParser) parseMonth(v string) (time.Time, bool) {
	if !p.check(v, "datetime="+monthLayout) {
		return time.Time{}, false
	}
	m, err := time.Parse(monthLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return m.UTC(), true
}

func firstParam(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// MatchesFilter applies every filter except group and pagination.
func MatchesFilter(v *domain.CustomerView, f domain.ListFilter) bool {
	if f.Query != "" && !matchesQuery(v, f.Query) {
		return false
	}
	if f.Status != "" && v.Status.Status != f.Status {
		return false
	}
	switch f.Certificate {
	case domain.CertificatePurchaseConfirmed:
		if !v.Certificates.PurchaseConfirmed {
			return false
		}
	case domain.CertificateRefunded:
		if !v.Certificates.Refunded {
			return false
		}
	}
	modified := v.Identity.LastModifiedAt.UTC()
	if f.MonthFrom != nil && modified.Before(*f.MonthFrom) {
		return false
	}
	if f.MonthTo != nil && !modified.Before(f.MonthTo.AddDate(0, 1, 0)) {
		return false
	}
	if f.ManagerID != nil && !ownedByManager(v.Ownership, *f.ManagerID) {
		return false
	}
	return true
}

func matchesQuery(v *domain.CustomerView, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(v.Identity.Name), q) ||
		strings.Contains(strings.ToLower(v.Identity.Email), q) ||
		strings.Contains(strings.ToLower(v.Identity.Phone), q) {
		return true
	}
	digits := phone.Digits(query)
	return digits != "" && strings.Contains(phone.Digits(v.Identity.Phone), digits)
}

// ownedByManager matches manager-level claims and agents supervised by the manager.
func ownedByManager(claim *domain.OwnershipClaim, managerID int64) bool {
	if claim == nil {
		return false
	}
	if claim.OwnerType == domain.OwnerManager && claim.OwnerProfileID == managerID {
		return true
	}
	return claim.SupervisorID != nil && *claim.SupervisorID == managerID
}
