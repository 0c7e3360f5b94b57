package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultQueryLimit = 10

// SearchIndex stores each loan as one point: the full record as payload, a
// hashed sparse vector for keyword relevance and, when configured, a dense
// embedding. Fuzzy matching is not available on this backend.
type SearchIndex struct {
	c *Client
}

var _ ports.SearchIndex = (*SearchIndex)(nil)

func NewSearchIndex(c *Client) *SearchIndex {
	return &SearchIndex{c: c}
}

type loanPayload struct {
	domain.LoanRecord
	CreatedTS int64 `json:"created_ts"`
}

type scoredPoint struct {
	Score   float64     `json:"score"`
	Payload loanPayload `json:"payload"`
}

func (s *SearchIndex) Ping(ctx context.Context) bool {
	return s.c.Ping(ctx)
}

// Query runs a dense or sparse search when the query carries a vector or
// text, and a filtered scroll otherwise. Filters always bound the result; text
// only ranks within them.
func (s *SearchIndex) Query(ctx context.Context, q ports.SearchQuery) (ports.SearchResponse, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	filter := buildFilter(q)

	var vector map[string]any
	if len(q.Vector) > 0 {
		if s.c.vectorDim == 0 {
			return ports.SearchResponse{}, fmt.Errorf("qdrant search: collection has no dense vector")
		}
		vector = map[string]any{"name": denseVectorName, "vector": q.Vector}
	} else if sparse := encodeSparseQuery(q.Text); len(sparse.Indices) > 0 {
		vector = map[string]any{"name": sparseVectorName, "vector": sparse}
	}
	if vector == nil {
		return s.scroll(ctx, filter, q.Limit)
	}

	points, err := s.search(ctx, vector, filter, q.Limit)
	if err != nil {
		return ports.SearchResponse{}, err
	}
	hits := toHits(points)
	if filter == nil {
		return ports.SearchResponse{Hits: hits, Total: len(hits)}, nil
	}

	total, err := s.count(ctx, filter)
	if err != nil {
		return ports.SearchResponse{}, err
	}
	if len(hits) < q.Limit && len(hits) < total {
		// A sparse search only reaches points sharing a token with the text;
		// the rest of the filtered set follows, unscored, newest first.
		rest, err := s.scrollPoints(ctx, filter, q.Limit)
		if err != nil {
			return ports.SearchResponse{}, err
		}
		hits = appendUnseen(hits, toHits(rest), q.Limit)
	}
	return ports.SearchResponse{Hits: hits, Total: max(total, len(hits))}, nil
}

func (s *SearchIndex) search(ctx context.Context, vector map[string]any, filter map[string]any, limit int) ([]scoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	var points []scoredPoint
	if _, err := s.c.do(ctx, http.MethodPost, s.c.collectionPath("/points/search"), body, &points); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	return points, nil
}

// scroll serves filter-only queries newest first, with an exact count of all
// matching points.
func (s *SearchIndex) scroll(ctx context.Context, filter map[string]any, limit int) (ports.SearchResponse, error) {
	points, err := s.scrollPoints(ctx, filter, limit)
	if err != nil {
		return ports.SearchResponse{}, err
	}
	total, err := s.count(ctx, filter)
	if err != nil {
		return ports.SearchResponse{}, err
	}

	hits := toHits(points)
	for i := range hits {
		hits[i].Score = 1.0
	}
	return ports.SearchResponse{Hits: hits, Total: max(total, len(hits))}, nil
}

func (s *SearchIndex) scrollPoints(ctx context.Context, filter map[string]any, limit int) ([]scoredPoint, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
		"order_by":     map[string]any{"key": fieldCreatedTS, "direction": "desc"},
	}
	if filter != nil {
		body["filter"] = filter
	}
	var page struct {
		Points []scoredPoint `json:"points"`
	}
	if _, err := s.c.do(ctx, http.MethodPost, s.c.collectionPath("/points/scroll"), body, &page); err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	return page.Points, nil
}

func (s *SearchIndex) count(ctx context.Context, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var out struct {
		Count int `json:"count"`
	}
	if _, err := s.c.do(ctx, http.MethodPost, s.c.collectionPath("/points/count"), body, &out); err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return out.Count, nil
}

func appendUnseen(hits, more []ports.SearchHit, limit int) []ports.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		seen[h.Record.ID] = struct{}{}
	}
	for _, h := range more {
		if len(hits) >= limit {
			break
		}
		if _, ok := seen[h.Record.ID]; ok {
			continue
		}
		seen[h.Record.ID] = struct{}{}
		h.Score = 0
		hits = append(hits, h)
	}
	return hits
}

func toHits(points []scoredPoint) []ports.SearchHit {
	hits := make([]ports.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, ports.SearchHit{Record: p.Payload.LoanRecord, Score: p.Score})
	}
	return hits
}

func (s *SearchIndex) Upsert(ctx context.Context, doc ports.IndexDocument) error {
	return s.BulkUpsert(ctx, []ports.IndexDocument{doc})
}

func (s *SearchIndex) BulkUpsert(ctx context.Context, docs []ports.IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.c.EnsureCollection(ctx); err != nil {
		return err
	}

	points := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Record.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("record id is required"))
		}
		vectors := map[string]any{}
		if sparse := encodeSparseLoan(doc.Record); len(sparse.Indices) > 0 {
			vectors[sparseVectorName] = sparse
		}
		if len(doc.Vector) > 0 && s.c.vectorDim > 0 {
			vectors[denseVectorName] = doc.Vector
		}
		points = append(points, map[string]any{
			"id":      pointID(doc.Record.ID),
			"vector":  vectors,
			"payload": loanPayload{LoanRecord: doc.Record, CreatedTS: doc.Record.CreatedAt.UnixMicro()},
		})
	}

	body := map[string]any{"points": points}
	if _, err := s.c.do(ctx, http.MethodPut, s.c.collectionPath("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// pointID derives a stable UUID, since Qdrant only accepts UUIDs and
// unsigned integers as point ids.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("loan:"+recordID)).String()
}
