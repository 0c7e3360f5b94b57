package usecase

import (
	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultRRFK = 60

type fusedCandidate struct {
	hit   ports.SearchHit
	score float64
}

// fuseHitsRRF merges semantic and lexical hit lists with reciprocal rank
// fusion. Records are keyed by ID; highlights from either list are kept.
func fuseHitsRRF(semantic, lexical []ports.SearchHit, rrfK int) []domain.SearchResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))
	addList := func(hits []ports.SearchHit) {
		for rank, hit := range hits {
			key := hit.Record.ID
			candidate, seen := acc[key]
			if !seen {
				order = append(order, key)
			}
			candidate.hit = preferRicherHit(candidate.hit, hit)
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(semantic)
	addList(lexical)

	out := make([]domain.SearchResult, 0, len(acc))
	for _, key := range order {
		c := acc[key]
		out = append(out, domain.SearchResult{
			Record:     c.hit.Record,
			Score:      c.score,
			Highlights: c.hit.Highlights,
		})
	}
	sortResults(out)
	return out
}

func hitsToResults(hits []ports.SearchHit) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.SearchResult{
			Record:     hit.Record,
			Score:      hit.Score,
			Highlights: hit.Highlights,
		})
	}
	return out
}

func preferRicherHit(current, candidate ports.SearchHit) ports.SearchHit {
	if current.Record.ID == "" {
		return candidate
	}
	if len(current.Highlights) == 0 && len(candidate.Highlights) > 0 {
		current.Highlights = candidate.Highlights
	}
	if current.Record.ApplicationID == "" && candidate.Record.ApplicationID != "" {
		current.Record = candidate.Record
	}
	return current
}
