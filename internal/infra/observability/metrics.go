package observability

import (
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the identity service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	sourceErrors     *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	partialResponses *prometheus.CounterVec
	ambiguousMatches prometheus.Counter
	healedAccounts   prometheus.Counter
	reconcileRuns    *prometheus.CounterVec
	groupSize        *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_request_duration_seconds",
				Help:    "Duration of identity operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_source_errors_total",
				Help: "Evidence source reads that failed or timed out.",
			},
			[]string{"source"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		partialResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_partial_responses_total",
				Help: "Responses served with at least one degraded facet.",
			},
			[]string{"operation"},
		),
		ambiguousMatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "identity_ambiguous_matches_total",
				Help: "Phone fallbacks that found more than one counterpart candidate.",
			},
		),
		healedAccounts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "identity_healed_accounts_total",
				Help: "Guide accounts reactivated by reconciliation.",
			},
		),
		reconcileRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_reconcile_runs_total",
				Help: "Reconciliation runs by outcome.",
			},
			[]string{"result"},
		),
		groupSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "identity_customers",
				Help: "Customers per lifecycle group and facet at the last full listing.",
			},
			[]string{"group"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrSourceError increments the failed-source counter.
func (m *Metrics) IncrSourceError(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrPartial counts a degraded response.
func (m *Metrics) IncrPartial(operation string) {
	m.partialResponses.WithLabelValues(operation).Inc()
}

// IncrAmbiguousMatch counts an ambiguous phone fallback.
func (m *Metrics) IncrAmbiguousMatch() {
	m.ambiguousMatches.Inc()
}

// AddHealed counts reactivated accounts.
func (m *Metrics) AddHealed(n int) {
	m.healedAccounts.Add(float64(n))
}

// IncrReconcileRun counts a reconciliation run with its outcome.
func (m *Metrics) IncrReconcileRun(result string) {
	m.reconcileRuns.WithLabelValues(result).Inc()
}

// SetGroupCounts publishes the latest group counts.
func (m *Metrics) SetGroupCounts(c domain.GroupCounts) {
	m.groupSize.WithLabelValues(string(domain.GroupKeyAll)).Set(float64(c.All))
	m.groupSize.WithLabelValues(string(domain.GroupKeyRefund)).Set(float64(c.Refund))
	m.groupSize.WithLabelValues(string(domain.GroupKeyPurchase)).Set(float64(c.Purchase))
	m.groupSize.WithLabelValues(string(domain.GroupKeyTrial)).Set(float64(c.Trial))
	m.groupSize.WithLabelValues(string(domain.GroupKeyMall)).Set(float64(c.Mall))
	m.groupSize.WithLabelValues(string(domain.GroupKeyProspects)).Set(float64(c.Prospects))
	m.groupSize.WithLabelValues(string(domain.GroupKeyManagerCustomers)).Set(float64(c.ManagerCustomers))
	m.groupSize.WithLabelValues(string(domain.GroupKeyAgentCustomers)).Set(float64(c.AgentCustomers))
	m.groupSize.WithLabelValues(string(domain.GroupKeyPassport)).Set(float64(c.Passport))
}

// SourceErrors returns the cumulative failure count for a source.
func (m *Metrics) SourceErrors(source string) float64 {
	return getCounterValue(m.sourceErrors, source)
}

// PartialResponses returns the cumulative degraded-response count for an operation.
func (m *Metrics) PartialResponses(operation string) float64 {
	return getCounterValue(m.partialResponses, operation)
}

// Healed returns the cumulative number of reactivated accounts.
func (m *Metrics) Healed() float64 {
	return readCounter(m.healedAccounts)
}

// AmbiguousMatches returns the cumulative number of ambiguous phone matches.
func (m *Metrics) AmbiguousMatches() float64 {
	return readCounter(m.ambiguousMatches)
}

// CacheHits returns the cumulative hit count for a cache.
func (m *Metrics) CacheHits(cache string) float64 {
	return getCounterValue(m.cacheHits, cache)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
