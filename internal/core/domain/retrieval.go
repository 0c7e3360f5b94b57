package domain

import "time"

type SearchResult struct {
	Record     LoanRecord        `json:"record"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// RetrievalTier names the strategy that produced a result set.
type RetrievalTier string

const (
	TierIndex     RetrievalTier = "index"
	TierStoreScan RetrievalTier = "store_scan"
	TierEmpty     RetrievalTier = "empty"
)

type RetrievalOutcome struct {
	Results []SearchResult `json:"results"`
	Tier    RetrievalTier  `json:"tier"`
	// TotalMatches counts matching records before the result cap.
	TotalMatches int `json:"total_matches"`
}

type AmountStats struct {
	Sum  float64 `json:"sum"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type CustomerAggregate struct {
	Name        string  `json:"name"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

// EvidenceContext is the bounded digest handed to generation. It is never persisted.
type EvidenceContext struct {
	Question     string              `json:"question"`
	TotalResults int                 `json:"total_results"`
	TotalMatches int                 `json:"total_matches"`
	ByStatus     map[string]int      `json:"by_status"`
	ByLoanType   map[string]int      `json:"by_loan_type"`
	ByRiskLevel  map[string]int      `json:"by_risk_level"`
	Amounts      AmountStats         `json:"amounts"`
	TopCustomers []CustomerAggregate `json:"top_customers"`
	Sample       []LoanRecord        `json:"sample"`
	Digest       string              `json:"digest"`
}

type Citation struct {
	Position      int      `json:"position"`
	ApplicationID string   `json:"application_id"`
	CustomerName  string   `json:"customer_name"`
	LoanType      LoanType `json:"loan_type"`
	Score         float64  `json:"score"`
}

type GenerationPath string

const (
	GenerationPathLLM      GenerationPath = "llm"
	GenerationPathFallback GenerationPath = "fallback"
)

type Generation struct {
	Text           string         `json:"text"`
	Path           GenerationPath `json:"path"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
}

type ChatMode string

const (
	ChatModeSimple  ChatMode = "simple"
	ChatModeComplex ChatMode = "complex"
)

type ChatAnswer struct {
	Text           string         `json:"answer"`
	Citations      []Citation     `json:"citations"`
	Mode           ChatMode       `json:"mode"`
	Tier           RetrievalTier  `json:"tier,omitempty"`
	Intent         *QueryIntent   `json:"intent,omitempty"`
	GenerationPath GenerationPath `json:"generation"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
