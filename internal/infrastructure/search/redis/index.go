package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultQueryLimit = 10

// SearchIndex serves lexical and KNN queries over the loan hashes.
type SearchIndex struct {
	c *Client
}

var _ ports.SearchIndex = (*SearchIndex)(nil)

func NewSearchIndex(c *Client) *SearchIndex {
	return &SearchIndex{c: c}
}

func (s *SearchIndex) Ping(ctx context.Context) bool {
	return s.c.Ping(ctx)
}

func (s *SearchIndex) Query(ctx context.Context, q ports.SearchQuery) (ports.SearchResponse, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}

	semantic := len(q.Vector) > 0
	var args []string
	if semantic {
		if s.c.vectorDim == 0 {
			return ports.SearchResponse{}, fmt.Errorf("knn query: index has no vector field")
		}
		args = knnArgs(q)
	} else {
		args = lexicalArgs(q)
	}

	raw, err := s.c.search(ctx, "search loans", args)
	if err != nil {
		return ports.SearchResponse{}, err
	}
	total, entries, err := parseSearchReply(raw, !semantic)
	if err != nil {
		return ports.SearchResponse{}, err
	}

	hits := make([]ports.SearchHit, 0, len(entries))
	for _, entry := range entries {
		score := entry.score
		if semantic {
			score = 0
			if d, err := strconv.ParseFloat(entry.fields[fieldVectorScore], 64); err == nil {
				score = max(0, 1.0-d)
			}
		}
		var highlights map[string]string
		if !semantic {
			highlights = takeHighlights(entry.fields)
		}
		rec, err := decodeLoan(entry.fields)
		if err != nil {
			slog.Warn("search_hit_decode_failed", "key", entry.key, "error", err)
			continue
		}
		hits = append(hits, ports.SearchHit{Record: rec, Score: score, Highlights: highlights})
	}
	return ports.SearchResponse{Hits: hits, Total: total}, nil
}

// Upsert writes the record hash and, when present, its embedding. Fields not
// part of the record are left untouched.
func (s *SearchIndex) Upsert(ctx context.Context, doc ports.IndexDocument) error {
	if strings.TrimSpace(doc.Record.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "index loan", fmt.Errorf("record id is required"))
	}
	if err := s.c.client.Do(ctx, s.hsetCommand(doc)).Error(); err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "index loan", err)
	}
	return nil
}

func (s *SearchIndex) BulkUpsert(ctx context.Context, docs []ports.IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}
	cmds := make(rueidis.Commands, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Record.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "bulk index loans", fmt.Errorf("record id is required"))
		}
		cmds = append(cmds, s.hsetCommand(doc))
	}
	for i, res := range s.c.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return domain.WrapError(domain.ErrBackendUnavailable, "bulk index loans", fmt.Errorf("loan %s: %w", docs[i].Record.ID, err))
		}
	}
	return nil
}

func (s *SearchIndex) hsetCommand(doc ports.IndexDocument) rueidis.Completed {
	cmd := s.c.client.B().Hset().Key(loanKey(doc.Record.ID)).FieldValue()
	for k, v := range encodeLoan(doc.Record) {
		cmd = cmd.FieldValue(k, v)
	}
	if len(doc.Vector) > 0 && s.c.vectorDim > 0 {
		cmd = cmd.FieldValue(fieldEmbedding, vectorToBytes(doc.Vector))
	}
	return cmd.Build()
}
