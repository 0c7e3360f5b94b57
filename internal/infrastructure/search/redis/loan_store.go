package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

// maxScanResults matches the default MAXSEARCHRESULTS of the search module.
const maxScanResults = 10_000

// LoanStore keeps records in the indexed hashes, so the record store and the
// search index share one copy. Application ids are reserved with SET NX.
type LoanStore struct {
	c   *Client
	now func() time.Time
}

var _ ports.LoanStore = (*LoanStore)(nil)

func NewLoanStore(c *Client) *LoanStore {
	return &LoanStore{c: c, now: time.Now}
}

func (s *LoanStore) GetAll(ctx context.Context, limit int) ([]domain.LoanRecord, error) {
	return s.list(ctx, "list loans", "*", limit)
}

func (s *LoanStore) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	fields, err := s.c.client.Do(ctx, s.c.client.B().Hgetall().Key(loanKey(id)).Build()).AsStrMap()
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "get loan", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec, err := decodeLoan(fields)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *LoanStore) GetByField(ctx context.Context, field, value string) ([]domain.LoanRecord, error) {
	var query string
	switch {
	case tagFields[field]:
		query = tagFilter(field, value)
	case field == domain.FieldCustomerName:
		words := strings.Fields(strings.ToLower(value))
		if len(words) == 0 {
			return []domain.LoanRecord{}, nil
		}
		for i, w := range words {
			words[i] = escapeQuery(w)
		}
		query = fmt.Sprintf("@%s:(%s)", domain.FieldCustomerName, strings.Join(words, " "))
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "get loans by field", fmt.Errorf("unsupported field %q", field))
	}

	records, err := s.list(ctx, "get loans by field", query, 0)
	if err != nil {
		return nil, err
	}
	// Text matching is token based; keep exact values only.
	out := records[:0]
	for _, rec := range records {
		if v, _ := rec.FieldValue(field); v == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *LoanStore) list(ctx context.Context, op, query string, limit int) ([]domain.LoanRecord, error) {
	if limit <= 0 || limit > maxScanResults {
		limit = maxScanResults
	}
	args := []string{query, "SORTBY", fieldCreatedAt, "ASC", "RETURN", strconv.Itoa(len(returnFields))}
	args = append(args, returnFields...)
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")

	raw, err := s.c.search(ctx, op, args)
	if err != nil {
		if domain.IsKind(err, domain.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, op, err)
	}
	_, entries, err := parseSearchReply(raw, false)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LoanRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := decodeLoan(entry.fields)
		if err != nil {
			slog.Warn("loan_decode_failed", "key", entry.key, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *LoanStore) Create(ctx context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.CreatedAt

	if strings.TrimSpace(rec.ApplicationID) == "" {
		seqKey := seqKeyPrefix + strconv.Itoa(rec.CreatedAt.Year())
		seq, err := s.c.client.Do(ctx, s.c.client.B().Incr().Key(seqKey).Build()).AsInt64()
		if err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "create loan", err)
		}
		rec.ApplicationID = domain.FormatApplicationID(rec.CreatedAt, seq)
	}

	reserve := s.c.client.B().Set().Key(appIDKeyPrefix + rec.ApplicationID).Value(rec.ID).Nx().Build()
	if err := s.c.client.Do(ctx, reserve).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, domain.WrapError(domain.ErrConflict, "create loan", fmt.Errorf("application id %s already exists", rec.ApplicationID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "create loan", err)
	}

	if err := s.write(ctx, rec); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "create loan", err)
	}
	return &rec, nil
}

// Update is read-modify-write without WATCH; concurrent patches to the same
// record resolve last writer wins.
func (s *LoanStore) Update(ctx context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "update loan", errors.New(id))
	}
	updated, err := patch.Apply(*current, s.now())
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update loan", err)
	}
	if err := s.write(ctx, updated); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "update loan", err)
	}
	return &updated, nil
}

func (s *LoanStore) write(ctx context.Context, rec domain.LoanRecord) error {
	cmd := s.c.client.B().Hset().Key(loanKey(rec.ID)).FieldValue()
	for k, v := range encodeLoan(rec) {
		cmd = cmd.FieldValue(k, v)
	}
	return s.c.client.Do(ctx, cmd.Build()).Error()
}
