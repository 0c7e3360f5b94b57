package ports

import (
	"context"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

// LoanStore is the system of record for loan applications.
//
// GetByID returns (nil, nil) when the record does not exist. Update on a
// missing id returns an error of kind domain.ErrNotFound.
type LoanStore interface {
	GetAll(ctx context.Context, limit int) ([]domain.LoanRecord, error)
	GetByID(ctx context.Context, id string) (*domain.LoanRecord, error)
	GetByField(ctx context.Context, field, value string) ([]domain.LoanRecord, error)
	Create(ctx context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error)
	Update(ctx context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error)
}

// ChatHistoryStore persists question/answer pairs.
type ChatHistoryStore interface {
	Append(ctx context.Context, rec domain.ChatRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ChatRecord, error)
}

// TermFilter is an exact match on an enumeration field.
type TermFilter struct {
	Field string
	Value string
}

// RangeFilter is inclusive on both bounds. A nil bound is open.
type RangeFilter struct {
	Field string
	Min   *float64
	Max   *float64
}

// TextField is a full-text field with its relevance boost.
type TextField struct {
	Name  string
	Boost float64
}

// SearchQuery is the structured query vocabulary of a SearchIndex: filters are
// ANDed, text relevance is OR-scored across Fields with fuzzy matching.
type SearchQuery struct {
	Terms        []TermFilter
	Ranges       []RangeFilter
	CustomerName string
	Text         string
	Fields       []TextField
	Fuzzy        bool
	Vector       []float32
	Limit        int
}

type SearchHit struct {
	Record     domain.LoanRecord
	Score      float64
	Highlights map[string]string
}

type SearchResponse struct {
	Hits  []SearchHit
	Total int
}

// IndexDocument is a record prepared for indexing.
type IndexDocument struct {
	Record domain.LoanRecord
	Vector []float32
}

// SearchIndex is the full-text/semantic search backend.
type SearchIndex interface {
	Query(ctx context.Context, q SearchQuery) (SearchResponse, error)
	Upsert(ctx context.Context, doc IndexDocument) error
	BulkUpsert(ctx context.Context, docs []IndexDocument) error
	Ping(ctx context.Context) bool
}

// Embedder builds vectors for record text and question text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type CompletionOptions struct {
	Timeout   time.Duration
	MaxTokens int
}

// TextGenerator is the external language model. Errors should be
// *domain.GenerationError so callers can classify them.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (string, error)
}

// EventPublisher announces loan changes to asynchronous consumers.
type EventPublisher interface {
	PublishLoanChanged(ctx context.Context, loanID string) error
}

// EventSubscriber consumes loan change events until ctx is done.
type EventSubscriber interface {
	SubscribeLoanChanged(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives pipeline telemetry. Implementations must be cheap
// and safe for concurrent use.
type PipelineObserver interface {
	ObserveRetrieval(tier domain.RetrievalTier, results int)
	ObserveGeneration(path domain.GenerationPath, reason string)
	ObserveChat(mode domain.ChatMode, duration time.Duration)
}
