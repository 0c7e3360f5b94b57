package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const (
	// MaxRetrievalResults bounds every result set handed downstream.
	MaxRetrievalResults = 50
	// MaxStoreScan bounds the record set fetched by the store scan tier.
	MaxStoreScan = 10_000

	maxKeywordTerms = 8
)

var errTierUnavailable = errors.New("retrieval tier not configured")

// Index field names and the relevance boosts used by the index tier.
var indexTextFields = []ports.TextField{
	{Name: domain.FieldCustomerName, Boost: 3.0},
	{Name: domain.FieldLoanType, Boost: 2.0},
	{Name: domain.FieldStatus, Boost: 1.5},
	{Name: domain.FieldPurpose, Boost: 1.0},
}

type tierResult struct {
	results []domain.SearchResult
	total   int
}

// retrievalTier is one strategy of the fallback chain. Any error advances to
// the next tier; an empty successful result is final.
type retrievalTier interface {
	name() domain.RetrievalTier
	retrieve(ctx context.Context, intent domain.QueryIntent, rawQuery string, limit int) (tierResult, error)
}

type RetrievalOptions struct {
	SemanticEnabled bool
	RRFK            int
	// CandidateFactor widens the per-branch fetch before fusion.
	CandidateFactor int
}

func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{SemanticEnabled: true, RRFK: defaultRRFK, CandidateFactor: 2}
}

// RetrievalEngine runs the ordered fallback: index search, then a linear scan
// of the record store, then an empty result. It never returns an error.
type RetrievalEngine struct {
	tiers    []retrievalTier
	observer ports.PipelineObserver
}

func NewRetrievalEngine(
	store ports.LoanStore,
	index ports.SearchIndex,
	embedder ports.Embedder,
	opts RetrievalOptions,
	observer ports.PipelineObserver,
) *RetrievalEngine {
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = 1
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &RetrievalEngine{
		tiers: []retrievalTier{
			&indexTier{index: index, embedder: embedder, opts: opts},
			&storeScanTier{store: store},
		},
		observer: observer,
	}
}

func (e *RetrievalEngine) Retrieve(
	ctx context.Context,
	intent domain.QueryIntent,
	rawQuery string,
	limit int,
) domain.RetrievalOutcome {
	limit = effectiveLimit(limit)

	for _, tier := range e.tiers {
		res, err := tier.retrieve(ctx, intent, rawQuery, limit)
		if err != nil {
			if !errors.Is(err, errTierUnavailable) {
				slog.Warn("retrieval_tier_failed", "tier", string(tier.name()), "error", err)
			}
			continue
		}

		sortResults(res.results)
		results := trimResults(res.results, limit)
		total := res.total
		if total < len(res.results) {
			total = len(res.results)
		}
		e.observer.ObserveRetrieval(tier.name(), len(results))
		return domain.RetrievalOutcome{Results: results, Tier: tier.name(), TotalMatches: total}
	}

	slog.Warn("retrieval_exhausted", "tiers", len(e.tiers))
	e.observer.ObserveRetrieval(domain.TierEmpty, 0)
	return domain.RetrievalOutcome{Results: []domain.SearchResult{}, Tier: domain.TierEmpty}
}

func effectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxRetrievalResults {
		return MaxRetrievalResults
	}
	return limit
}

type indexTier struct {
	index    ports.SearchIndex
	embedder ports.Embedder
	opts     RetrievalOptions
}

func (t *indexTier) name() domain.RetrievalTier { return domain.TierIndex }

func (t *indexTier) retrieve(ctx context.Context, intent domain.QueryIntent, rawQuery string, limit int) (tierResult, error) {
	if t.index == nil {
		return tierResult{}, errTierUnavailable
	}

	candidates := limit * t.opts.CandidateFactor
	lexicalQuery := BuildSearchQuery(intent, rawQuery, candidates)
	semanticEnabled := t.opts.SemanticEnabled && t.embedder != nil && lexicalQuery.Text != ""

	var (
		lexical     ports.SearchResponse
		semantic    ports.SearchResponse
		semanticErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		resp, err := t.index.Query(ctx, lexicalQuery)
		if err != nil {
			return fmt.Errorf("lexical query: %w", err)
		}
		if len(resp.Hits) == 0 && lexicalQuery.Text != "" && !intent.HasConstraints() {
			// Free text with no structured constraint matched nothing; fall
			// back to the unconstrained set so broad questions still see data.
			relaxed := lexicalQuery
			relaxed.Text = ""
			resp, err = t.index.Query(ctx, relaxed)
			if err != nil {
				return fmt.Errorf("relaxed lexical query: %w", err)
			}
		}
		lexical = resp
		return nil
	})
	if semanticEnabled {
		g.Go(func() error {
			vector, err := t.embedder.Embed(ctx, rawQuery)
			if err != nil {
				semanticErr = fmt.Errorf("embed query: %w", err)
				return nil
			}
			semanticQuery := lexicalQuery
			semanticQuery.Text = ""
			semanticQuery.Fields = nil
			semanticQuery.Vector = vector
			semantic, semanticErr = t.index.Query(ctx, semanticQuery)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tierResult{}, err
	}

	if semanticErr != nil {
		slog.Warn("semantic_search_degraded", "error", semanticErr)
	}
	if semanticErr != nil || len(semantic.Hits) == 0 {
		return tierResult{results: hitsToResults(lexical.Hits), total: lexical.Total}, nil
	}

	fused := fuseHitsRRF(semantic.Hits, lexical.Hits, t.opts.RRFK)
	return tierResult{results: fused, total: max(lexical.Total, len(fused))}, nil
}

// BuildSearchQuery translates an intent into the index query vocabulary:
// exact terms for enumeration filters, inclusive ranges for amount and risk,
// and fuzzy, boosted text relevance from the free-text part of the question.
func BuildSearchQuery(intent domain.QueryIntent, rawQuery string, limit int) ports.SearchQuery {
	q := ports.SearchQuery{
		Fields: indexTextFields,
		Fuzzy:  true,
		Limit:  limit,
		Text:   strings.Join(keywordTerms(rawQuery, maxKeywordTerms), " "),
	}
	if status := intent.Filters[domain.FilterStatus]; status != "" {
		q.Terms = append(q.Terms, ports.TermFilter{Field: domain.FieldStatus, Value: status})
	}
	if loanType := intent.Filters[domain.FilterLoanType]; loanType != "" {
		q.Terms = append(q.Terms, ports.TermFilter{Field: domain.FieldLoanType, Value: loanType})
	}
	p := intent.Parameters
	if p.MinAmount != nil || p.MaxAmount != nil {
		q.Ranges = append(q.Ranges, ports.RangeFilter{Field: domain.FieldAmount, Min: p.MinAmount, Max: p.MaxAmount})
	}
	if p.MinRiskScore != nil || p.MaxRiskScore != nil {
		q.Ranges = append(q.Ranges, ports.RangeFilter{Field: domain.FieldRiskScore, Min: p.MinRiskScore, Max: p.MaxRiskScore})
	}
	q.CustomerName = strings.TrimSpace(p.CustomerName)
	return q
}

type storeScanTier struct {
	store ports.LoanStore
}

func (t *storeScanTier) name() domain.RetrievalTier { return domain.TierStoreScan }

func (t *storeScanTier) retrieve(ctx context.Context, intent domain.QueryIntent, _ string, _ int) (tierResult, error) {
	if t.store == nil {
		return tierResult{}, errTierUnavailable
	}
	records, err := t.store.GetAll(ctx, MaxStoreScan)
	if err != nil {
		return tierResult{}, fmt.Errorf("scan record store: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(records))
	for _, rec := range records {
		if MatchesIntent(rec, intent) {
			out = append(out, domain.SearchResult{Record: rec, Score: 1.0})
		}
	}
	return tierResult{results: out, total: len(out)}, nil
}

// MatchesIntent applies the intent predicates in-process. Enumeration filters
// compare exactly; the customer name is a case-insensitive substring match;
// numeric ranges include both bounds.
func MatchesIntent(rec domain.LoanRecord, intent domain.QueryIntent) bool {
	if status, ok := intent.Filters[domain.FilterStatus]; ok && string(rec.Status) != status {
		return false
	}
	if loanType, ok := intent.Filters[domain.FilterLoanType]; ok && string(rec.LoanType) != loanType {
		return false
	}
	p := intent.Parameters
	if !inRange(rec.Amount, p.MinAmount, p.MaxAmount) {
		return false
	}
	if !inRange(rec.RiskScore, p.MinRiskScore, p.MaxRiskScore) {
		return false
	}
	if name := strings.TrimSpace(p.CustomerName); name != "" {
		if !strings.Contains(strings.ToLower(rec.CustomerName), strings.ToLower(name)) {
			return false
		}
	}
	return true
}

func inRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

type noopObserver struct{}

func (noopObserver) ObserveRetrieval(domain.RetrievalTier, int)      {}
func (noopObserver) ObserveGeneration(domain.GenerationPath, string) {}
func (noopObserver) ObserveChat(domain.ChatMode, time.Duration)      {}
