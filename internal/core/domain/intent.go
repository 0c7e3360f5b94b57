package domain

type IntentKind string

const (
	IntentGeneral        IntentKind = "general"
	IntentStatusFilter   IntentKind = "status_filter"
	IntentAmountFilter   IntentKind = "amount_filter"
	IntentCustomerFilter IntentKind = "customer_filter"
	IntentRiskFilter     IntentKind = "risk_filter"
	IntentCount          IntentKind = "count"
	IntentSummary        IntentKind = "summary"
)

// Intent filter keys. Values are exact enumeration members.
const (
	FilterStatus   = "status"
	FilterLoanType = "loanType"
)

type IntentParameters struct {
	MinAmount    *float64 `json:"minAmount,omitempty"`
	MaxAmount    *float64 `json:"maxAmount,omitempty"`
	CustomerName string   `json:"customerName,omitempty"`
	MinRiskScore *float64 `json:"minRiskScore,omitempty"`
	MaxRiskScore *float64 `json:"maxRiskScore,omitempty"`
}

// QueryIntent is the structured reading of a question. Kind is a best-effort
// label; filters and parameters may be populated regardless of it.
type QueryIntent struct {
	Kind       IntentKind        `json:"kind"`
	Filters    map[string]string `json:"filters"`
	Parameters IntentParameters  `json:"parameters"`
}

func NewQueryIntent() QueryIntent {
	return QueryIntent{Kind: IntentGeneral, Filters: map[string]string{}}
}

// HasConstraints reports whether any filter or parameter narrows the record set.
func (q QueryIntent) HasConstraints() bool {
	p := q.Parameters
	return len(q.Filters) > 0 || p.MinAmount != nil || p.MaxAmount != nil || p.CustomerName != "" ||
		p.MinRiskScore != nil || p.MaxRiskScore != nil
}
