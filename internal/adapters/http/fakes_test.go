package httpadapter

import (
	"context"
	"net/http"

	"github.com/kirillkom/loan-rag-assistant/internal/config"
	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

type chatFake struct {
	gotQuestion string
	gotUserID   string
	historyErr  error
}

func (f *chatFake) Answer(_ context.Context, question, userID string) *domain.ChatAnswer {
	f.gotQuestion = question
	f.gotUserID = userID
	return &domain.ChatAnswer{
		Text:           "There are 2 approved loans.",
		Citations:      []domain.Citation{{Position: 1, ApplicationID: "LA-2024-001"}},
		Mode:           domain.ChatModeSimple,
		Tier:           domain.TierIndex,
		GenerationPath: domain.GenerationPathFallback,
	}
}

func (f *chatFake) History(_ context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return []domain.ChatRecord{{ID: "h-1", UserID: userID}}, nil
}

type parserFake struct{}

func (parserFake) Parse(string) domain.QueryIntent {
	intent := domain.NewQueryIntent()
	intent.Kind = domain.IntentStatusFilter
	intent.Filters[domain.FilterStatus] = string(domain.LoanStatusApproved)
	return intent
}

type retrieverFake struct {
	gotLimit int
}

func (f *retrieverFake) Retrieve(_ context.Context, _ domain.QueryIntent, _ string, limit int) domain.RetrievalOutcome {
	f.gotLimit = limit
	return domain.RetrievalOutcome{
		Results:      []domain.SearchResult{{Record: domain.LoanRecord{ID: "loan-1", ApplicationID: "LA-2024-001"}, Score: 1}},
		Tier:         domain.TierStoreScan,
		TotalMatches: 7,
	}
}

type loansFake struct {
	err    error
	record *domain.LoanRecord
}

func (f *loansFake) Create(_ context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec.ID = "loan-1"
	return &rec, nil
}

func (f *loansFake) Update(_ context.Context, id string, _ domain.LoanPatch) (*domain.LoanRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LoanRecord{ID: id, Status: domain.LoanStatusApproved}, nil
}

func (f *loansFake) Get(context.Context, string) (*domain.LoanRecord, error) {
	return f.record, f.err
}

func (f *loansFake) List(context.Context, string, string) ([]domain.LoanRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.LoanRecord{}, nil
}

type indexerFake struct {
	indexed int
}

func (f *indexerFake) IndexLoan(context.Context, string) error { return nil }

func (f *indexerFake) Reindex(context.Context) (int, error) { return f.indexed, nil }

func newTestServices() Services {
	return Services{
		Chat:      &chatFake{},
		Parser:    parserFake{},
		Retriever: &retrieverFake{},
		Loans:     &loansFake{},
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, newTestServices(), nil, nil).Handler()
}
