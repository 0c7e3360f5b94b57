package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

// intentRule is one step of question interpretation. Rules run in order and
// accumulate into a single intent; a matching rule with a non-empty kind
// overwrites the kind set by earlier rules.
type intentRule struct {
	name  string
	kind  domain.IntentKind
	apply func(text string, intent *domain.QueryIntent) bool
}

// QueryInterpreter turns a question into a QueryIntent with pattern rules.
// Rule order is part of the contract:
//
//	status -> loan type -> summary -> count -> amount -> customer -> risk
//
// so "how many approved loans above $10k" ends as amount_filter with both the
// status filter and the amount bound populated.
type QueryInterpreter struct {
	rules []intentRule
}

func NewQueryInterpreter() *QueryInterpreter {
	return &QueryInterpreter{rules: defaultIntentRules()}
}

func defaultIntentRules() []intentRule {
	return []intentRule{
		{name: "status", kind: domain.IntentStatusFilter, apply: applyStatusRule},
		{name: "loan_type", apply: applyLoanTypeRule},
		{name: "summary", kind: domain.IntentSummary, apply: applySummaryRule},
		{name: "count", kind: domain.IntentCount, apply: applyCountRule},
		{name: "amount", kind: domain.IntentAmountFilter, apply: applyAmountRule},
		{name: "customer", kind: domain.IntentCustomerFilter, apply: applyCustomerRule},
		{name: "risk", kind: domain.IntentRiskFilter, apply: applyRiskRule},
	}
}

func (qi *QueryInterpreter) Parse(question string) domain.QueryIntent {
	intent := domain.NewQueryIntent()
	text := normalizeQuestion(question)
	if text == "" {
		return intent
	}

	for _, rule := range qi.rules {
		if rule.apply(text, &intent) && rule.kind != "" {
			intent.Kind = rule.kind
		}
	}
	return intent
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeQuestion(question string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(question), " "))
}

type phraseValue struct {
	pattern *regexp.Regexp
	value   string
}

var statusPhrases = []phraseValue{
	{regexp.MustCompile(`\b(under[ _]review|in review|being reviewed)\b`), string(domain.LoanStatusUnderReview)},
	{regexp.MustCompile(`\bpending\b`), string(domain.LoanStatusPending)},
	{regexp.MustCompile(`\bapproved\b`), string(domain.LoanStatusApproved)},
	{regexp.MustCompile(`\b(rejected|declined|denied)\b`), string(domain.LoanStatusRejected)},
	{regexp.MustCompile(`\b(disbursed|funded|paid out)\b`), string(domain.LoanStatusDisbursed)},
}

var loanTypePhrases = []phraseValue{
	{regexp.MustCompile(`\b(mortgages?|home loans?)\b`), string(domain.LoanTypeMortgage)},
	{regexp.MustCompile(`\b(auto|car|vehicle)\b`), string(domain.LoanTypeAuto)},
	{regexp.MustCompile(`\b(student|education)\b`), string(domain.LoanTypeStudent)},
	{regexp.MustCompile(`\bbusiness\b`), string(domain.LoanTypeBusiness)},
	{regexp.MustCompile(`\bpersonal\b`), string(domain.LoanTypePersonal)},
}

func firstPhraseValue(text string, phrases []phraseValue) (string, bool) {
	for _, p := range phrases {
		if p.pattern.MatchString(text) {
			return p.value, true
		}
	}
	return "", false
}

func applyStatusRule(text string, intent *domain.QueryIntent) bool {
	status, ok := firstPhraseValue(text, statusPhrases)
	if !ok {
		return false
	}
	intent.Filters[domain.FilterStatus] = status
	return true
}

func applyLoanTypeRule(text string, intent *domain.QueryIntent) bool {
	loanType, ok := firstPhraseValue(text, loanTypePhrases)
	if !ok {
		return false
	}
	intent.Filters[domain.FilterLoanType] = loanType
	return true
}

var (
	summaryRe = regexp.MustCompile(`\b(summary|summarize|summarise|overview|statistics|stats|breakdown)\b`)
	countRe   = regexp.MustCompile(`\b(how many|count|number of|total number)\b`)
)

func applySummaryRule(text string, _ *domain.QueryIntent) bool {
	return summaryRe.MatchString(text)
}

func applyCountRule(text string, _ *domain.QueryIntent) bool {
	return countRe.MatchString(text)
}

// amountPattern matches "$50,000", "50000", "50k", "1.5m" and "2 million".
const amountPattern = `\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?(?:\s*(thousand|million)\b|([km])\b)?`

var (
	amountBetweenRe = regexp.MustCompile(`\bbetween\s+` + amountPattern + `\s+(?:and|to|-)\s+` + amountPattern)
	amountMinRe     = regexp.MustCompile(`\b(?:above|over|more than|greater than|larger than|higher than|exceeding|at least|minimum of|min)\s+` + amountPattern)
	amountMaxRe     = regexp.MustCompile(`\b(?:below|under|less than|lower than|smaller than|at most|up to|maximum of|max)\s+` + amountPattern)
)

// Amount phrases followed by a unit are not money.
var nonMoneySuffixRe = regexp.MustCompile(`^\s*(months?|years?|%|percent|points?)\b`)

func applyAmountRule(text string, intent *domain.QueryIntent) bool {
	text = maskRiskPhrases(text)
	matched := false

	if loc := amountBetweenRe.FindStringSubmatchIndex(text); loc != nil {
		groups := submatches(text, loc)
		low, okLow := parseAmount(groups[1], groups[2], groups[3], groups[4])
		high, okHigh := parseAmount(groups[5], groups[6], groups[7], groups[8])
		if okLow && okHigh && !isNonMoney(text[loc[1]:]) {
			if low > high {
				low, high = high, low
			}
			intent.Parameters.MinAmount = floatPtr(low)
			intent.Parameters.MaxAmount = floatPtr(high)
			matched = true
		}
		text = text[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + text[loc[1]:]
	}

	if value, ok := findAmount(amountMinRe, text); ok {
		intent.Parameters.MinAmount = floatPtr(value)
		matched = true
	}
	if value, ok := findAmount(amountMaxRe, text); ok {
		intent.Parameters.MaxAmount = floatPtr(value)
		matched = true
	}
	return matched
}

func findAmount(re *regexp.Regexp, text string) (float64, bool) {
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if isNonMoney(text[loc[1]:]) {
			continue
		}
		groups := submatches(text, loc)
		if value, ok := parseAmount(groups[1], groups[2], groups[3], groups[4]); ok {
			return value, true
		}
	}
	return 0, false
}

func isNonMoney(rest string) bool {
	return nonMoneySuffixRe.MatchString(rest)
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

// parseAmount strips thousands separators and applies the magnitude suffix.
// Unparseable input is reported as !ok and ignored by callers.
func parseAmount(integer, fraction, word, letter string) (float64, bool) {
	digits := strings.ReplaceAll(integer, ",", "")
	if digits == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(digits+fraction, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	switch {
	case word == "thousand" || letter == "k":
		value *= 1_000
	case word == "million" || letter == "m":
		value *= 1_000_000
	}
	return value, true
}

var (
	customerRe    = regexp.MustCompile(`\b(?:customer|applicant|borrower|client)\s+(?:named\s+|called\s+)?([a-z][a-z'.\-]*(?:\s+[a-z][a-z'.\-]*){0,3})`)
	nameStopWords = map[string]struct{}{
		"with": {}, "who": {}, "whose": {}, "that": {}, "which": {}, "and": {}, "or": {}, "in": {},
		"has": {}, "have": {}, "having": {}, "is": {}, "are": {}, "was": {}, "were": {}, "where": {},
		"above": {}, "below": {}, "over": {}, "under": {}, "between": {}, "loan": {}, "loans": {},
		"application": {}, "applications": {}, "id": {}, "the": {}, "a": {}, "an": {}, "for": {},
		"from": {}, "of": {}, "on": {}, "to": {}, "by": {}, "at": {}, "risk": {}, "status": {},
		"apply": {}, "applied": {}, "requested": {}, "borrowed": {}, "did": {}, "does": {}, "do": {},
		"get": {}, "got": {}, "want": {}, "wants": {}, "owes": {}, "high": {}, "low": {},
		"medium": {}, "moderate": {}, "risky": {},
	}
)

// isFilterWord reports whether word is status or loan type vocabulary, which
// ends a customer name.
func isFilterWord(word string) bool {
	_, isStatus := firstPhraseValue(word, statusPhrases)
	_, isType := firstPhraseValue(word, loanTypePhrases)
	return isStatus || isType
}

func applyCustomerRule(text string, intent *domain.QueryIntent) bool {
	for _, match := range customerRe.FindAllStringSubmatch(text, -1) {
		name := trimCustomerName(match[1])
		if name == "" {
			continue
		}
		intent.Parameters.CustomerName = name
		return true
	}
	return false
}

func trimCustomerName(raw string) string {
	parts := strings.Fields(raw)
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		possessive := strings.HasSuffix(part, "'s")
		part = strings.Trim(strings.TrimSuffix(part, "'s"), ".-'")
		if part == "" {
			break
		}
		if _, stop := nameStopWords[part]; stop || isFilterWord(part) {
			break
		}
		kept = append(kept, part)
		if possessive {
			break
		}
	}
	return strings.Join(kept, " ")
}

var (
	riskNumericRe = regexp.MustCompile(`\brisk(?:\s+scores?)?\s+(?:of\s+|is\s+)?(above|over|greater than|more than|at least|below|under|less than|at most)\s+(\d+(?:\.\d+)?)`)
	riskHighRe    = regexp.MustCompile(`\bhigh[\s-]+risk\b|\brisky\b`)
	riskMediumRe  = regexp.MustCompile(`\b(medium|moderate)[\s-]+risk\b`)
	riskLowRe     = regexp.MustCompile(`\blow[\s-]+risk\b`)
	riskMaskRe    = regexp.MustCompile(`\b(?:credit\s+)?(?:risk|score)(?:\s+scores?)?\s+(?:of\s+|is\s+)?(?:above|over|greater than|more than|at least|below|under|less than|at most)\s+\d+(?:\.\d+)?`)
)

func maskRiskPhrases(text string) string {
	return riskMaskRe.ReplaceAllStringFunc(text, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
}

func applyRiskRule(text string, intent *domain.QueryIntent) bool {
	matched := false
	switch {
	case riskHighRe.MatchString(text):
		intent.Parameters.MinRiskScore = floatPtr(justAbove(domain.HighRiskThreshold))
		matched = true
	case riskMediumRe.MatchString(text):
		intent.Parameters.MinRiskScore = floatPtr(justAbove(domain.MediumRiskThreshold))
		intent.Parameters.MaxRiskScore = floatPtr(domain.HighRiskThreshold)
		matched = true
	case riskLowRe.MatchString(text):
		intent.Parameters.MaxRiskScore = floatPtr(domain.MediumRiskThreshold)
		matched = true
	}

	for _, match := range riskNumericRe.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		switch match[1] {
		case "below", "under", "less than", "at most":
			intent.Parameters.MaxRiskScore = floatPtr(value)
		default:
			intent.Parameters.MinRiskScore = floatPtr(value)
		}
		matched = true
	}
	return matched
}

// justAbove turns an exclusive level threshold into an inclusive lower bound.
func justAbove(threshold float64) float64 {
	return math.Nextafter(threshold, math.Inf(1))
}

func floatPtr(v float64) *float64 {
	return &v
}
