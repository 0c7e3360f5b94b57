package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const fallbackListLimit = 10

type answerStyle string

const (
	styleGreeting answerStyle = "greeting"
	styleHelp     answerStyle = "help"
	styleCount    answerStyle = "count"
	styleList     answerStyle = "list"
)

var (
	greetingRe = regexp.MustCompile(`^(hi|hello|hey|greetings|good (morning|afternoon|evening))\b`)
	helpRe     = regexp.MustCompile(`\b(help|what can you do|how do i use|how does this work)\b`)
)

const capabilitySummary = `I can answer questions about loan applications. For example:
- "Show me all pending loans"
- "How many approved loans are there?"
- "Find loans above $50,000"
- "Loans for customer Jane Doe"
- "List high risk auto loans"
I filter by status, loan type, amount, customer and risk, and I cite the applications I used.`

func detectAnswerStyle(question string) answerStyle {
	text := normalizeQuestion(question)
	switch {
	case greetingRe.MatchString(text) && len(strings.Fields(text)) <= 4:
		return styleGreeting
	case helpRe.MatchString(text):
		return styleHelp
	case countRe.MatchString(text):
		return styleCount
	default:
		return styleList
	}
}

// FallbackAnswer builds a templated answer from the evidence and result set
// with no external dependency. Counts use the same totals the language model
// is given, so both paths state the same numbers.
func FallbackAnswer(question string, ev domain.EvidenceContext, results []domain.SearchResult) string {
	switch detectAnswerStyle(question) {
	case styleGreeting:
		return "Hello! " + capabilitySummary
	case styleHelp:
		return capabilitySummary
	case styleCount:
		if ev.TotalMatches == 0 {
			return noMatchesAnswer()
		}
		return countAnswer(ev)
	default:
		if len(results) == 0 {
			return noMatchesAnswer()
		}
		return listAnswer(ev, results)
	}
}

func noMatchesAnswer() string {
	return "I couldn't find any loan applications matching your question (0 results). " +
		"Try rephrasing it, widening an amount or risk range, or asking about a different status or loan type."
}

func countAnswer(ev domain.EvidenceContext) string {
	var b strings.Builder
	if ev.TotalMatches == 1 {
		b.WriteString("There is 1 loan application matching your question.")
	} else {
		fmt.Fprintf(&b, "There are %s loan applications matching your question.", formatCount(ev.TotalMatches))
	}
	if len(ev.ByStatus) > 0 && ev.TotalMatches == ev.TotalResults {
		fmt.Fprintf(&b, " By status: %s.", formatBreakdown(ev.ByStatus))
	}
	return b.String()
}

func listAnswer(ev domain.EvidenceContext, results []domain.SearchResult) string {
	var b strings.Builder
	if ev.TotalMatches == 1 {
		b.WriteString("I found 1 loan application matching your question:\n")
	} else {
		fmt.Fprintf(&b, "I found %s loan applications matching your question:\n", formatCount(ev.TotalMatches))
	}

	shown := min(len(results), fallbackListLimit)
	for i := 0; i < shown; i++ {
		b.WriteString(formatListLine(i+1, results[i].Record))
		b.WriteByte('\n')
	}
	if more := ev.TotalMatches - shown; more > 0 {
		fmt.Fprintf(&b, "+%s more\n", formatCount(more))
	}
	fmt.Fprintf(&b, "Total amount %s, average %s.", formatMoney(ev.Amounts.Sum), formatMoney(ev.Amounts.Mean))
	return b.String()
}

func formatListLine(position int, rec domain.LoanRecord) string {
	return fmt.Sprintf("%d. %s (%s) %s, %s, %s risk [%s]",
		position,
		rec.CustomerName,
		rec.LoanType,
		formatMoney(rec.Amount),
		rec.Status,
		rec.EffectiveRiskLevel(),
		rec.ApplicationID,
	)
}

// ensureCountStated appends the exact total when a generated answer to a count
// question does not mention it.
func ensureCountStated(answer string, total int) string {
	for _, form := range []string{formatCount(total), fmt.Sprintf("%d", total)} {
		if regexp.MustCompile(`(^|[^\d,])` + regexp.QuoteMeta(form) + `($|[^\d,])`).MatchString(answer) {
			return answer
		}
	}
	return strings.TrimRight(answer, "\n ") + fmt.Sprintf("\n\nTotal matching loan applications: %s.", formatCount(total))
}
