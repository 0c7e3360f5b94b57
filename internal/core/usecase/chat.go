package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const (
	defaultChatRetrieveLimit = 20
	defaultAnalyticalRecords = 10
	historyPersistTimeout    = 2 * time.Second
	emptyQuestionAnswer      = "Please ask a question about the loan applications, for example \"How many approved loans are there?\""
)

type ChatOptions struct {
	RetrieveLimit     int
	AnalyticalRecords int
	Policy            ComplexityPolicy
}

func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		RetrieveLimit:     defaultChatRetrieveLimit,
		AnalyticalRecords: defaultAnalyticalRecords,
		Policy:            DefaultComplexityPolicy(),
	}
}

// ChatUseCase is the chat orchestrator. It chooses the simple or analytical
// path, generates the answer and records chat history on a best-effort basis.
type ChatUseCase struct {
	parser    ports.QueryParser
	retriever ports.Retriever
	generator *ResponseGenerator
	store     ports.LoanStore
	history   ports.ChatHistoryStore
	opts      ChatOptions
	observer  ports.PipelineObserver
	now       func() time.Time
}

func NewChatUseCase(
	parser ports.QueryParser,
	retriever ports.Retriever,
	generator *ResponseGenerator,
	store ports.LoanStore,
	history ports.ChatHistoryStore,
	opts ChatOptions,
	observer ports.PipelineObserver,
) *ChatUseCase {
	def := DefaultChatOptions()
	if opts.RetrieveLimit <= 0 {
		opts.RetrieveLimit = def.RetrieveLimit
	}
	if opts.AnalyticalRecords <= 0 {
		opts.AnalyticalRecords = def.AnalyticalRecords
	}
	if opts.Policy.MinLength <= 0 && len(opts.Policy.Triggers) == 0 {
		opts.Policy = def.Policy
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &ChatUseCase{
		parser:    parser,
		retriever: retriever,
		generator: generator,
		store:     store,
		history:   history,
		opts:      opts,
		observer:  observer,
		now:       time.Now,
	}
}

func (uc *ChatUseCase) Answer(ctx context.Context, question, userID string) *domain.ChatAnswer {
	started := uc.now()
	question = strings.TrimSpace(question)
	if question == "" {
		return &domain.ChatAnswer{
			Text:           emptyQuestionAnswer,
			Citations:      []domain.Citation{},
			Mode:           domain.ChatModeSimple,
			Tier:           domain.TierEmpty,
			GenerationPath: domain.GenerationPathFallback,
			FallbackReason: "empty_question",
			CreatedAt:      started.UTC(),
		}
	}

	var answer *domain.ChatAnswer
	if uc.opts.Policy.IsComplex(question) {
		answer = uc.answerAnalytical(ctx, question)
	} else {
		answer = uc.answerSimple(ctx, question)
	}
	answer.CreatedAt = uc.now().UTC()

	uc.persist(ctx, userID, question, answer)
	uc.observer.ObserveChat(answer.Mode, uc.now().Sub(started))
	return answer
}

func (uc *ChatUseCase) answerSimple(ctx context.Context, question string) *domain.ChatAnswer {
	intent := uc.parser.Parse(question)
	outcome := uc.retriever.Retrieve(ctx, intent, question, uc.opts.RetrieveLimit)
	ev := SummarizeWithTotal(outcome.Results, outcome.TotalMatches, question)
	gen := uc.generator.Generate(ctx, question, ev, outcome.Results)

	return &domain.ChatAnswer{
		Text:           gen.Text,
		Citations:      BuildCitations(outcome.Results),
		Mode:           domain.ChatModeSimple,
		Tier:           outcome.Tier,
		Intent:         &intent,
		GenerationPath: gen.Path,
		FallbackReason: gen.FallbackReason,
	}
}

// answerAnalytical skips structured filtering and hands the raw question plus
// a handful of loosely matched records to generation.
func (uc *ChatUseCase) answerAnalytical(ctx context.Context, question string) *domain.ChatAnswer {
	tier := domain.TierStoreScan
	var results []domain.SearchResult
	if uc.store == nil {
		tier = domain.TierEmpty
	} else {
		records, err := uc.store.GetAll(ctx, MaxStoreScan)
		if err != nil {
			slog.Warn("analytical_scan_failed", "error", err)
			tier = domain.TierEmpty
		} else {
			results = rankLooseMatches(question, records, uc.opts.AnalyticalRecords)
		}
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	ev := Summarize(results, question)
	gen := uc.generator.GenerateAnalytical(ctx, question, ev, results)
	return &domain.ChatAnswer{
		Text:           gen.Text,
		Citations:      BuildCitations(results),
		Mode:           domain.ChatModeComplex,
		Tier:           tier,
		GenerationPath: gen.Path,
		FallbackReason: gen.FallbackReason,
	}
}

func (uc *ChatUseCase) persist(ctx context.Context, userID, question string, answer *domain.ChatAnswer) {
	if uc.history == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyPersistTimeout)
	defer cancel()

	rec := domain.ChatRecord{
		ID:             uuid.NewString(),
		UserID:         strings.TrimSpace(userID),
		Question:       question,
		Answer:         answer.Text,
		Mode:           answer.Mode,
		GenerationPath: answer.GenerationPath,
		CitationCount:  len(answer.Citations),
		CreatedAt:      answer.CreatedAt,
	}
	if err := uc.history.Append(persistCtx, rec); err != nil {
		slog.Warn("chat_history_persist_failed", "user_id", rec.UserID, "error", err)
	}
}

func (uc *ChatUseCase) History(ctx context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	if uc.history == nil {
		return []domain.ChatRecord{}, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat history", errEmptyUserID)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.history.ListByUser(ctx, strings.TrimSpace(userID), limit)
}

// BuildCitations numbers the ranked results from 1.
func BuildCitations(results []domain.SearchResult) []domain.Citation {
	out := make([]domain.Citation, 0, len(results))
	for i, res := range results {
		out = append(out, domain.Citation{
			Position:      i + 1,
			ApplicationID: res.Record.ApplicationID,
			CustomerName:  res.Record.CustomerName,
			LoanType:      res.Record.LoanType,
			Score:         res.Score,
		})
	}
	return out
}
