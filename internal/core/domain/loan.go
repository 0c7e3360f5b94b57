package domain

import (
	"fmt"
	"strings"
	"time"
)

type LoanType string

const (
	LoanTypePersonal LoanType = "personal"
	LoanTypeMortgage LoanType = "mortgage"
	LoanTypeAuto     LoanType = "auto"
	LoanTypeBusiness LoanType = "business"
	LoanTypeStudent  LoanType = "student"
)

var LoanTypes = []LoanType{LoanTypePersonal, LoanTypeMortgage, LoanTypeAuto, LoanTypeBusiness, LoanTypeStudent}

func (t LoanType) Valid() bool {
	for _, candidate := range LoanTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

type LoanStatus string

const (
	LoanStatusPending     LoanStatus = "pending"
	LoanStatusUnderReview LoanStatus = "under_review"
	LoanStatusApproved    LoanStatus = "approved"
	LoanStatusRejected    LoanStatus = "rejected"
	LoanStatusDisbursed   LoanStatus = "disbursed"
)

var LoanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusUnderReview,
	LoanStatusApproved,
	LoanStatusRejected,
	LoanStatusDisbursed,
}

func (s LoanStatus) Valid() bool {
	for _, candidate := range LoanStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk scores are stored on a 1-100 scale where a higher score is riskier.
const (
	MinRiskScore        = 1.0
	MaxRiskScore        = 100.0
	HighRiskThreshold   = 70.0
	MediumRiskThreshold = 30.0

	minCreditScore = 300.0
	maxCreditScore = 850.0
)

// RiskLevelFor maps a canonical risk score to its level: >70 high, >30 medium.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score > HighRiskThreshold:
		return RiskHigh
	case score > MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskScoreFromCreditScore converts a 300-850 credit score into the canonical
// risk scale. A perfect credit score becomes the lowest risk.
func RiskScoreFromCreditScore(creditScore float64) float64 {
	if creditScore < minCreditScore {
		creditScore = minCreditScore
	}
	if creditScore > maxCreditScore {
		creditScore = maxCreditScore
	}
	risk := (maxCreditScore - creditScore) / (maxCreditScore - minCreditScore) * MaxRiskScore
	if risk < MinRiskScore {
		return MinRiskScore
	}
	return risk
}

type LoanRecord struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	CustomerID    string     `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	LoanType      LoanType   `json:"loan_type"`
	Amount        float64    `json:"amount"`
	TermMonths    int        `json:"term_months"`
	Status        LoanStatus `json:"status"`
	RiskScore     float64    `json:"risk_score"`
	RiskLevel     RiskLevel  `json:"risk_level,omitempty"`
	Purpose       string     `json:"purpose,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EffectiveRiskLevel returns the stored level, deriving it from the score when absent.
func (r LoanRecord) EffectiveRiskLevel() RiskLevel {
	if r.RiskLevel != "" {
		return r.RiskLevel
	}
	return RiskLevelFor(r.RiskScore)
}

// SearchText is the text embedded and indexed for semantic search.
func (r LoanRecord) SearchText() string {
	parts := []string{
		r.CustomerName,
		string(r.LoanType) + " loan",
		strings.ReplaceAll(string(r.Status), "_", " "),
		fmt.Sprintf("amount %.2f", r.Amount),
		fmt.Sprintf("term %d months", r.TermMonths),
		string(r.EffectiveRiskLevel()) + " risk",
		r.Purpose,
	}
	return strings.TrimSpace(strings.Join(parts, ". "))
}

// Validate checks the fields a caller must supply on creation.
func (r LoanRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	case strings.TrimSpace(r.CustomerName) == "":
		return fmt.Errorf("%w: customer_name is required", ErrInvalidInput)
	case !r.LoanType.Valid():
		return fmt.Errorf("%w: unsupported loan_type %q", ErrInvalidInput, r.LoanType)
	case !r.Status.Valid():
		return fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, r.Status)
	case r.Amount < 0:
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	case r.TermMonths <= 0:
		return fmt.Errorf("%w: term_months must be positive", ErrInvalidInput)
	case r.RiskScore < MinRiskScore || r.RiskScore > MaxRiskScore:
		return fmt.Errorf("%w: risk_score must be within [%g, %g]", ErrInvalidInput, MinRiskScore, MaxRiskScore)
	}
	return nil
}

// LoanPatch is a partial update. Nil fields are left unchanged; the
// application identifier is immutable and therefore absent.
type LoanPatch struct {
	CustomerName  *string     `json:"customer_name,omitempty"`
	CustomerEmail *string     `json:"customer_email,omitempty"`
	LoanType      *LoanType   `json:"loan_type,omitempty"`
	Amount        *float64    `json:"amount,omitempty"`
	TermMonths    *int        `json:"term_months,omitempty"`
	Status        *LoanStatus `json:"status,omitempty"`
	RiskScore     *float64    `json:"risk_score,omitempty"`
	Purpose       *string     `json:"purpose,omitempty"`
}

func (p LoanPatch) Empty() bool {
	return p.CustomerName == nil && p.CustomerEmail == nil && p.LoanType == nil && p.Amount == nil &&
		p.TermMonths == nil && p.Status == nil && p.RiskScore == nil && p.Purpose == nil
}

// Apply returns a copy of rec with the patch applied and the result validated.
// UpdatedAt is advanced to now, or nudged past the previous value so it never
// goes backwards.
func (p LoanPatch) Apply(rec LoanRecord, now time.Time) (LoanRecord, error) {
	out := rec
	if p.CustomerName != nil {
		out.CustomerName = *p.CustomerName
	}
	if p.CustomerEmail != nil {
		out.CustomerEmail = *p.CustomerEmail
	}
	if p.LoanType != nil {
		out.LoanType = *p.LoanType
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.TermMonths != nil {
		out.TermMonths = *p.TermMonths
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.RiskScore != nil {
		out.RiskScore = *p.RiskScore
		out.RiskLevel = ""
	}
	if p.Purpose != nil {
		out.Purpose = *p.Purpose
	}
	if err := out.Validate(); err != nil {
		return LoanRecord{}, err
	}
	out.UpdatedAt = NextUpdatedAt(rec.UpdatedAt, now)
	return out, nil
}

// FormatApplicationID renders the human readable identifier, e.g. LA-2024-007.
func FormatApplicationID(createdAt time.Time, seq int64) string {
	return fmt.Sprintf("LA-%d-%03d", createdAt.Year(), seq)
}

// NextUpdatedAt keeps UpdatedAt monotonic per record.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// Filterable record fields accepted by LoanStore.GetByField.
const (
	FieldStatus        = "status"
	FieldLoanType      = "loan_type"
	FieldCustomerID    = "customer_id"
	FieldApplicationID = "application_id"
	FieldCustomerName  = "customer_name"
)

// Numeric and free-text fields addressed by search queries.
const (
	FieldAmount    = "amount"
	FieldRiskScore = "risk_score"
	FieldPurpose   = "purpose"
)

// FieldValue returns the string form of a filterable field.
func (r LoanRecord) FieldValue(field string) (string, bool) {
	switch field {
	case FieldStatus:
		return string(r.Status), true
	case FieldLoanType:
		return string(r.LoanType), true
	case FieldCustomerID:
		return r.CustomerID, true
	case FieldApplicationID:
		return r.ApplicationID, true
	case FieldCustomerName:
		return r.CustomerName, true
	default:
		return "", false
	}
}
