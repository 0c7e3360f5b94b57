package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

// sortResults orders by score descending, then by creation time descending.
// The record ID is the final tiebreak so equal inputs always sort the same.
func sortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// rankLooseMatches scores every record by token overlap with the question and
// keeps the best topN. It backs the analytical chat path, which skips
// structured filtering. Records with no overlap still qualify so that broad
// analytical questions see a sample of the portfolio.
func rankLooseMatches(question string, records []domain.LoanRecord, topN int) []domain.SearchResult {
	if len(records) == 0 {
		return nil
	}
	queryTokens := toTokenSet(question)
	for token := range queryTokens {
		if _, stop := queryStopWords[token]; stop {
			delete(queryTokens, token)
		}
	}

	out := make([]domain.SearchResult, 0, len(records))
	for _, rec := range records {
		overlap := tokenOverlap(queryTokens, toTokenSet(rec.SearchText()))
		nameBoost := nameTokenHit(queryTokens, rec.CustomerName)
		out = append(out, domain.SearchResult{
			Record: rec,
			Score:  0.80*overlap + 0.20*nameBoost,
		})
	}
	sortResults(out)
	return trimResults(out, topN)
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func nameTokenHit(query map[string]struct{}, name string) float64 {
	if len(query) == 0 || name == "" {
		return 0
	}
	name = strings.ToLower(name)
	for token := range query {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(name, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// queryStopWords carry no retrieval signal in loan questions.
var queryStopWords = map[string]struct{}{
	"a": {}, "about": {}, "all": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "between": {}, "by": {}, "can": {}, "do": {}, "does": {}, "find": {}, "for": {},
	"from": {}, "get": {}, "give": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"list": {}, "loan": {}, "loans": {}, "application": {}, "applications": {}, "many": {}, "me": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "please": {}, "show": {}, "tell": {}, "that": {},
	"the": {}, "their": {}, "there": {}, "these": {}, "this": {}, "those": {}, "to": {}, "us": {},
	"we": {}, "what": {}, "which": {}, "who": {}, "with": {}, "above": {}, "below": {}, "over": {},
	"under": {}, "more": {}, "less": {}, "than": {}, "count": {}, "number": {}, "total": {},
	"summary": {}, "overview": {}, "customer": {}, "customers": {}, "my": {}, "you": {},
}

// keywordTerms extracts the free-text part of a question for index relevance.
func keywordTerms(question string, maxTerms int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, maxTerms)
	for _, token := range splitAlphaNumLower(question) {
		if len(token) < 2 || isDigits(token) {
			continue
		}
		if _, stop := queryStopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if maxTerms > 0 && len(out) == maxTerms {
			break
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
