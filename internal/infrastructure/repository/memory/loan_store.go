package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

// LoanStore keeps loan records in process memory in insertion order.
type LoanStore struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]domain.LoanRecord
	byAppID map[string]string

	seq atomic.Int64
	now func() time.Time
}

var _ ports.LoanStore = (*LoanStore)(nil)

func NewLoanStore() *LoanStore {
	return &LoanStore{
		byID:    make(map[string]domain.LoanRecord),
		byAppID: make(map[string]string),
		now:     time.Now,
	}
}

func (s *LoanStore) GetAll(_ context.Context, limit int) ([]domain.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.LoanRecord, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *LoanStore) GetByID(_ context.Context, id string) (*domain.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *LoanStore) GetByField(_ context.Context, field, value string) ([]domain.LoanRecord, error) {
	if _, ok := (domain.LoanRecord{}).FieldValue(field); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get loans by field", fmt.Errorf("unsupported field %q", field))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LoanRecord, 0)
	for _, id := range s.order {
		rec := s.byID[id]
		if v, _ := rec.FieldValue(field); v == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Create assigns the ID, a missing application ID and the timestamps.
func (s *LoanStore) Create(_ context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	now := s.now().UTC()
	seq := s.seq.Add(1)

	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.CreatedAt
	if strings.TrimSpace(rec.ApplicationID) == "" {
		rec.ApplicationID = domain.FormatApplicationID(rec.CreatedAt, seq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byAppID[rec.ApplicationID]; taken {
		return nil, domain.WrapError(domain.ErrConflict, "create loan", fmt.Errorf("application id %s already exists", rec.ApplicationID))
	}
	s.byID[rec.ID] = rec
	s.byAppID[rec.ApplicationID] = rec.ID
	s.order = append(s.order, rec.ID)
	return &rec, nil
}

func (s *LoanStore) Update(_ context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "update loan", errors.New(id))
	}
	updated, err := patch.Apply(rec, s.now())
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update loan", err)
	}
	s.byID[id] = updated
	return &updated, nil
}
