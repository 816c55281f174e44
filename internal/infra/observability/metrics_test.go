package observability_test

import (
	"testing"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"
)

func TestMetrics_Counters(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrSourceError("leads")
	m.IncrSourceError("leads")
	m.IncrPartial("list_customers")
	m.AddHealed(3)
	m.IncrAmbiguousMatch()
	m.IncrCacheHit("affiliate_profiles")

	if got := m.SourceErrors("leads"); got != 2 {
		t.Errorf("expected 2 lead errors, got %v", got)
	}
	if got := m.SourceErrors("refunds"); got != 0 {
		t.Errorf("expected 0 refund errors, got %v", got)
	}
	if got := m.PartialResponses("list_customers"); got != 1 {
		t.Errorf("expected 1 partial response, got %v", got)
	}
	if got := m.Healed(); got != 3 {
		t.Errorf("expected 3 healed, got %v", got)
	}
	if got := m.AmbiguousMatches(); got != 1 {
		t.Errorf("expected 1 ambiguous match, got %v", got)
	}
	if got := m.CacheHits("affiliate_profiles"); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.SetGroupCounts(domain.GroupCounts{All: 4, Purchase: 2})
	if b.Registry == a.Registry {
		t.Fatal("expected separate registries")
	}

	families, err := a.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "identity_customers" {
			found = true
		}
	}
	if !found {
		t.Error("expected identity_customers gauge to be registered")
	}
}
