package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const (
	evidenceSampleSize = 5
	topCustomerCount   = 5
)

// Summarize reduces a ranked result set to an evidence context.
func Summarize(results []domain.SearchResult, question string) domain.EvidenceContext {
	return SummarizeWithTotal(results, len(results), question)
}

// SummarizeWithTotal is Summarize for a capped result set whose full match
// count is known. totalMatches smaller than len(results) is ignored.
func SummarizeWithTotal(results []domain.SearchResult, totalMatches int, question string) domain.EvidenceContext {
	if totalMatches < len(results) {
		totalMatches = len(results)
	}
	ev := domain.EvidenceContext{
		Question:     question,
		TotalResults: len(results),
		TotalMatches: totalMatches,
		ByStatus:     map[string]int{},
		ByLoanType:   map[string]int{},
		ByRiskLevel:  map[string]int{},
		TopCustomers: []domain.CustomerAggregate{},
		Sample:       []domain.LoanRecord{},
	}

	customers := make(map[string]*domain.CustomerAggregate)
	for i, res := range results {
		rec := res.Record
		ev.ByStatus[string(rec.Status)]++
		ev.ByLoanType[string(rec.LoanType)]++
		ev.ByRiskLevel[string(rec.EffectiveRiskLevel())]++

		ev.Amounts.Sum += rec.Amount
		if i == 0 || rec.Amount < ev.Amounts.Min {
			ev.Amounts.Min = rec.Amount
		}
		if i == 0 || rec.Amount > ev.Amounts.Max {
			ev.Amounts.Max = rec.Amount
		}

		name := strings.TrimSpace(rec.CustomerName)
		if name == "" {
			name = rec.CustomerID
		}
		agg, ok := customers[name]
		if !ok {
			agg = &domain.CustomerAggregate{Name: name}
			customers[name] = agg
		}
		agg.Count++
		agg.TotalAmount += rec.Amount

		if len(ev.Sample) < evidenceSampleSize {
			ev.Sample = append(ev.Sample, rec)
		}
	}
	if len(results) > 0 {
		ev.Amounts.Mean = ev.Amounts.Sum / float64(len(results))
	}

	for _, agg := range customers {
		ev.TopCustomers = append(ev.TopCustomers, *agg)
	}
	sort.Slice(ev.TopCustomers, func(i, j int) bool {
		if ev.TopCustomers[i].TotalAmount != ev.TopCustomers[j].TotalAmount {
			return ev.TopCustomers[i].TotalAmount > ev.TopCustomers[j].TotalAmount
		}
		return ev.TopCustomers[i].Name < ev.TopCustomers[j].Name
	})
	if len(ev.TopCustomers) > topCustomerCount {
		ev.TopCustomers = ev.TopCustomers[:topCustomerCount]
	}

	ev.Digest = renderDigest(ev)
	return ev
}

func renderDigest(ev domain.EvidenceContext) string {
	var b strings.Builder
	if ev.TotalResults == 0 {
		b.WriteString("No matching records were found for this question.\n")
		b.WriteString("Matching records: 0\n")
		b.WriteString("Status breakdown: none\n")
		b.WriteString("Loan type breakdown: none\n")
		b.WriteString("Risk level breakdown: none\n")
		b.WriteString("Amounts: none\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Matching records: %d (showing %d)\n", ev.TotalMatches, ev.TotalResults)
	fmt.Fprintf(&b, "Status breakdown: %s\n", formatBreakdown(ev.ByStatus))
	fmt.Fprintf(&b, "Loan type breakdown: %s\n", formatBreakdown(ev.ByLoanType))
	fmt.Fprintf(&b, "Risk level breakdown: %s\n", formatBreakdown(ev.ByRiskLevel))
	fmt.Fprintf(&b, "Amounts: total %s, average %s, min %s, max %s\n",
		formatMoney(ev.Amounts.Sum),
		formatMoney(ev.Amounts.Mean),
		formatMoney(ev.Amounts.Min),
		formatMoney(ev.Amounts.Max),
	)
	if len(ev.TopCustomers) > 0 {
		parts := make([]string, 0, len(ev.TopCustomers))
		for _, c := range ev.TopCustomers {
			parts = append(parts, fmt.Sprintf("%s (%d %s, %s)", c.Name, c.Count, plural(c.Count, "loan", "loans"), formatMoney(c.TotalAmount)))
		}
		fmt.Fprintf(&b, "Top customers: %s\n", strings.Join(parts, "; "))
	}
	return b.String()
}

// formatBreakdown renders a count map in descending count order, ties by key.
func formatBreakdown(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// formatMoney renders 1234567.5 as "$1,234,567.50".
func formatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	raw := strconv.FormatFloat(v, 'f', 2, 64)
	integer, fraction, _ := strings.Cut(raw, ".")
	return sign + "$" + groupThousands(integer) + "." + fraction
}

func formatCount(n int) string {
	if n < 0 {
		return "-" + groupThousands(strconv.Itoa(-n))
	}
	return groupThousands(strconv.Itoa(n))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
