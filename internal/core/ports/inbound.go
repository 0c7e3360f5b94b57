package ports

import (
	"context"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

// QueryParser is the inbound contract for question interpretation.
type QueryParser interface {
	Parse(question string) domain.QueryIntent
}

// Retriever executes an interpreted question against the fallback tiers.
type Retriever interface {
	Retrieve(ctx context.Context, intent domain.QueryIntent, rawQuery string, limit int) domain.RetrievalOutcome
}

// ChatService is the top-level question answering entry point. It never fails:
// every outcome is expressed as answer text.
type ChatService interface {
	Answer(ctx context.Context, question, userID string) *domain.ChatAnswer
	History(ctx context.Context, userID string, limit int) ([]domain.ChatRecord, error)
}

// LoanService is the inbound contract for loan record management.
type LoanService interface {
	Create(ctx context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error)
	Update(ctx context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error)
	Get(ctx context.Context, id string) (*domain.LoanRecord, error)
	List(ctx context.Context, field, value string) ([]domain.LoanRecord, error)
}

// LoanIndexer keeps the search index in sync with the record store.
type LoanIndexer interface {
	IndexLoan(ctx context.Context, id string) error
	Reindex(ctx context.Context) (int, error)
}
