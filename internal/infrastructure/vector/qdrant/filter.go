package qdrant

import (
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

// buildFilter translates the structured part of a query into a Qdrant
// "must" filter. It returns nil when the query has no constraint.
func buildFilter(q ports.SearchQuery) map[string]any {
	must := make([]map[string]any, 0, len(q.Terms)+len(q.Ranges)+1)
	for _, term := range q.Terms {
		must = append(must, map[string]any{
			"key":   term.Field,
			"match": map[string]any{"value": term.Value},
		})
	}
	for _, r := range q.Ranges {
		bounds := map[string]any{}
		if r.Min != nil {
			bounds["gte"] = *r.Min
		}
		if r.Max != nil {
			bounds["lte"] = *r.Max
		}
		if len(bounds) == 0 {
			continue
		}
		must = append(must, map[string]any{"key": r.Field, "range": bounds})
	}
	if name := strings.TrimSpace(q.CustomerName); name != "" {
		must = append(must, map[string]any{
			"key":   domain.FieldCustomerName,
			"match": map[string]any{"text": name},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}
