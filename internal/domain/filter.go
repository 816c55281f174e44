package domain

import "time"

// GroupKey names a listing group: a primary lifecycle group or a facet.
type GroupKey string

const (
	GroupKeyAll              GroupKey = "all"
	GroupKeyRefund           GroupKey = "refund"
	GroupKeyPurchase         GroupKey = "purchase"
	GroupKeyTrial            GroupKey = "trial"
	GroupKeyMall             GroupKey = "mall"
	GroupKeyProspects        GroupKey = "prospects"
	GroupKeyManagerCustomers GroupKey = "manager-customers"
	GroupKeyAgentCustomers   GroupKey = "agent-customers"
	GroupKeyPassport         GroupKey = "passport"
)

// CertificateType filters on the lifecycle markers of the backing accounts.
type CertificateType string

const (
	CertificatePurchaseConfirmed CertificateType = "purchase-confirmed"
	CertificateRefunded          CertificateType = "refunded"
)

// ListFilter is a parsed listing request. Zero values mean "no filter".
type ListFilter struct {
	Query       string
	Status      AccountStatus
	Certificate CertificateType
	// MonthFrom and MonthTo are the first instant of their months, in UTC.
	MonthFrom *time.Time
	MonthTo   *time.Time
	ManagerID *int64
	Group     GroupKey
	Page      int
	PageSize  int
}

// GroupCounts are computed over the whole scanned population. Named counts
// do not sum to All because facets overlap with primary groups.
type GroupCounts struct {
	All              int `json:"all"`
	Refund           int `json:"refund"`
	Purchase         int `json:"purchase"`
	Trial            int `json:"trial"`
	Mall             int `json:"mall"`
	Prospects        int `json:"prospects"`
	ManagerCustomers int `json:"manager-customers"`
	AgentCustomers   int `json:"agent-customers"`
	Passport         int `json:"passport"`
}

// Pagination describes the returned page.
type Pagination struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// CustomerPage is the result of listing customers.
type CustomerPage struct {
	Items           []CustomerView `json:"items"`
	Pagination      Pagination     `json:"pagination"`
	GroupCounts     GroupCounts    `json:"groupCounts"`
	Partial         bool           `json:"partial"`
	DegradedSources []string       `json:"degradedSources,omitempty"`
	IgnoredFilters  []string       `json:"ignoredFilters,omitempty"`
}

// ReconcileReport summarises one auto-heal reconciliation run.
type ReconcileReport struct {
	RunID           string    `json:"runId"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Scanned         int       `json:"scanned"`
	Candidates      int       `json:"candidates"`
	Healed          []int64   `json:"healed"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	Partial         bool      `json:"partial"`
	DegradedSources []string  `json:"degradedSources,omitempty"`
}
