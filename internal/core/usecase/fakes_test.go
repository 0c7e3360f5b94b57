package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func loanFixture(id string, status domain.LoanStatus, loanType domain.LoanType, amount float64, createdOffset time.Duration) domain.LoanRecord {
	return domain.LoanRecord{
		ID:            id,
		ApplicationID: "LA-2024-" + id,
		CustomerID:    "cust-" + id,
		CustomerName:  "Customer " + strings.ToUpper(id),
		LoanType:      loanType,
		Amount:        amount,
		TermMonths:    36,
		Status:        status,
		RiskScore:     40,
		Purpose:       "purpose " + id,
		CreatedAt:     baseTime.Add(createdOffset),
		UpdatedAt:     baseTime.Add(createdOffset),
	}
}

type loanStoreFake struct {
	mu        sync.Mutex
	records   []domain.LoanRecord
	getAllErr error
	getErr    error
	createErr error
	calls     int
	nextID    int
}

func (f *loanStoreFake) GetAll(_ context.Context, limit int) ([]domain.LoanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}
	out := append([]domain.LoanRecord(nil), f.records...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *loanStoreFake) GetByID(_ context.Context, id string) (*domain.LoanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, rec := range f.records {
		if rec.ID == id {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *loanStoreFake) GetByField(_ context.Context, field, value string) ([]domain.LoanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LoanRecord, 0)
	for _, rec := range f.records {
		if v, ok := rec.FieldValue(field); ok && v == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *loanStoreFake) Create(_ context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	rec.ID = "id-" + strconv.Itoa(f.nextID)
	rec.CreatedAt = baseTime
	rec.UpdatedAt = baseTime
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *loanStoreFake) Update(_ context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records {
		if rec.ID != id {
			continue
		}
		updated, err := patch.Apply(rec, baseTime.Add(time.Hour))
		if err != nil {
			return nil, err
		}
		f.records[i] = updated
		return &updated, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "update loan", errors.New(id))
}

type searchIndexFake struct {
	mu        sync.Mutex
	hits      []ports.SearchHit
	vectorHit []ports.SearchHit
	total     int
	err       error
	vectorErr error
	queries   []ports.SearchQuery
	upserted  []ports.IndexDocument
	bulkCalls int
}

func (f *searchIndexFake) Query(_ context.Context, q ports.SearchQuery) (ports.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if len(q.Vector) > 0 {
		if f.vectorErr != nil {
			return ports.SearchResponse{}, f.vectorErr
		}
		return ports.SearchResponse{Hits: f.vectorHit, Total: len(f.vectorHit)}, nil
	}
	if f.err != nil {
		return ports.SearchResponse{}, f.err
	}
	total := f.total
	if total == 0 {
		total = len(f.hits)
	}
	return ports.SearchResponse{Hits: f.hits, Total: total}, nil
}

func (f *searchIndexFake) Upsert(_ context.Context, doc ports.IndexDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, doc)
	return nil
}

func (f *searchIndexFake) BulkUpsert(_ context.Context, docs []ports.IndexDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bulkCalls++
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *searchIndexFake) Ping(context.Context) bool { return f.err == nil }

func (f *searchIndexFake) lexicalQueries() []ports.SearchQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.SearchQuery, 0, len(f.queries))
	for _, q := range f.queries {
		if len(q.Vector) == 0 {
			out = append(out, q)
		}
	}
	return out
}

type embedderFake struct {
	err   error
	texts []string
	mu    sync.Mutex
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type textGeneratorFake struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
	opts   ports.CompletionOptions
}

func (f *textGeneratorFake) Complete(_ context.Context, system, user string, opts ports.CompletionOptions) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type chatHistoryFake struct {
	mu      sync.Mutex
	records []domain.ChatRecord
	err     error
}

func (f *chatHistoryFake) Append(_ context.Context, rec domain.ChatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *chatHistoryFake) ListByUser(_ context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChatRecord, 0)
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type publisherFake struct {
	ids []string
	err error
}

func (f *publisherFake) PublishLoanChanged(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

type indexerFake struct {
	ids []string
}

func (f *indexerFake) IndexLoan(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

func (f *indexerFake) Reindex(context.Context) (int, error) { return 0, nil }

type observerFake struct {
	mu          sync.Mutex
	tiers       []domain.RetrievalTier
	generations []domain.GenerationPath
	reasons     []string
	modes       []domain.ChatMode
}

func (f *observerFake) ObserveRetrieval(tier domain.RetrievalTier, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers = append(f.tiers, tier)
}

func (f *observerFake) ObserveGeneration(path domain.GenerationPath, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generations = append(f.generations, path)
	f.reasons = append(f.reasons, reason)
}

func (f *observerFake) ObserveChat(mode domain.ChatMode, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
}
