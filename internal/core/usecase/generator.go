package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const (
	fallbackReasonDisabled = "generator_disabled"
	fallbackReasonEmpty    = "empty_response"
)

type GeneratorOptions struct {
	Timeout   time.Duration
	MaxTokens int
}

func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{Timeout: 12 * time.Second, MaxTokens: 512}
}

// ResponseGenerator answers from evidence with the language model and falls
// back to templated answers whenever the model is missing or fails.
type ResponseGenerator struct {
	llm      ports.TextGenerator
	opts     GeneratorOptions
	observer ports.PipelineObserver
}

func NewResponseGenerator(llm ports.TextGenerator, opts GeneratorOptions, observer ports.PipelineObserver) *ResponseGenerator {
	def := DefaultGeneratorOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &ResponseGenerator{llm: llm, opts: opts, observer: observer}
}

// Generate never fails; generation errors are classified, logged and
// resolved through FallbackAnswer.
func (g *ResponseGenerator) Generate(
	ctx context.Context,
	question string,
	ev domain.EvidenceContext,
	results []domain.SearchResult,
) domain.Generation {
	return g.generate(ctx, question, ev, results, false)
}

// GenerateAnalytical is Generate with the analytical instructions used by the
// complex chat path.
func (g *ResponseGenerator) GenerateAnalytical(
	ctx context.Context,
	question string,
	ev domain.EvidenceContext,
	results []domain.SearchResult,
) domain.Generation {
	return g.generate(ctx, question, ev, results, true)
}

func (g *ResponseGenerator) generate(
	ctx context.Context,
	question string,
	ev domain.EvidenceContext,
	results []domain.SearchResult,
	analytical bool,
) domain.Generation {
	if g.llm == nil {
		return g.fallback(question, ev, results, fallbackReasonDisabled)
	}

	system, user := buildAnswerPrompts(question, ev, analytical)
	genCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	text, err := g.llm.Complete(genCtx, system, user, ports.CompletionOptions{
		Timeout:   g.opts.Timeout,
		MaxTokens: g.opts.MaxTokens,
	})
	if err != nil {
		class := classifyCompletionError(genCtx, err)
		slog.Warn("generation_failed", "class", string(class), "error", err)
		return g.fallback(question, ev, results, string(class))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return g.fallback(question, ev, results, fallbackReasonEmpty)
	}
	if detectAnswerStyle(question) == styleCount {
		text = ensureCountStated(text, ev.TotalMatches)
	}

	g.observer.ObserveGeneration(domain.GenerationPathLLM, "")
	return domain.Generation{Text: text, Path: domain.GenerationPathLLM}
}

func (g *ResponseGenerator) fallback(
	question string,
	ev domain.EvidenceContext,
	results []domain.SearchResult,
	reason string,
) domain.Generation {
	g.observer.ObserveGeneration(domain.GenerationPathFallback, reason)
	return domain.Generation{
		Text:           FallbackAnswer(question, ev, results),
		Path:           domain.GenerationPathFallback,
		FallbackReason: reason,
	}
}

func classifyCompletionError(ctx context.Context, err error) domain.GenerationErrorClass {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.GenerationTimeout
	}
	return domain.ClassifyGenerationError(err)
}
