package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

var errBackendDown = domain.WrapError(domain.ErrBackendUnavailable, "search", errors.New("connection refused"))

func TestRetrieveUsesIndexTierWithFilters(t *testing.T) {
	pending := loanFixture("a", domain.LoanStatusPending, domain.LoanTypeAuto, 12000, 0)
	index := &searchIndexFake{hits: []ports.SearchHit{{Record: pending, Score: 2.5}}}
	store := &loanStoreFake{}
	engine := NewRetrievalEngine(store, index, nil, DefaultRetrievalOptions(), nil)

	intent := NewQueryInterpreter().Parse("Show me all pending loans")
	outcome := engine.Retrieve(context.Background(), intent, "Show me all pending loans", 10)

	if outcome.Tier != domain.TierIndex {
		t.Fatalf("expected index tier, got %s", outcome.Tier)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Score != 2.5 {
		t.Fatalf("unexpected results: %#v", outcome.Results)
	}
	if store.calls != 0 {
		t.Fatalf("store must not be scanned when the index answers")
	}

	queries := index.lexicalQueries()
	if len(queries) != 1 {
		t.Fatalf("expected one lexical query, got %d", len(queries))
	}
	q := queries[0]
	if len(q.Terms) != 1 || q.Terms[0] != (ports.TermFilter{Field: domain.FieldStatus, Value: "pending"}) {
		t.Fatalf("expected status term filter, got %#v", q.Terms)
	}
	if !q.Fuzzy || len(q.Fields) != 4 {
		t.Fatalf("expected fuzzy text over four boosted fields, got %#v", q)
	}
	if q.Text != "pending" {
		t.Fatalf("expected free text %q, got %q", "pending", q.Text)
	}
}

func TestRetrieveFallsBackToStoreScan(t *testing.T) {
	store := &loanStoreFake{records: []domain.LoanRecord{
		loanFixture("a", domain.LoanStatusPending, domain.LoanTypeAuto, 10000, 1*time.Hour),
		loanFixture("b", domain.LoanStatusApproved, domain.LoanTypeMortgage, 60000, 2*time.Hour),
		loanFixture("c", domain.LoanStatusPending, domain.LoanTypeBusiness, 75000, 3*time.Hour),
		loanFixture("d", domain.LoanStatusRejected, domain.LoanTypePersonal, 20000, 4*time.Hour),
	}}
	obs := &observerFake{}
	engine := NewRetrievalEngine(store, &searchIndexFake{err: errBackendDown}, nil, DefaultRetrievalOptions(), obs)

	question := "Find loans above $50,000"
	outcome := engine.Retrieve(context.Background(), NewQueryInterpreter().Parse(question), question, 10)

	if outcome.Tier != domain.TierStoreScan {
		t.Fatalf("expected store scan tier, got %s", outcome.Tier)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Record.ID != "c" || outcome.Results[1].Record.ID != "b" {
		t.Fatalf("expected newest first among equal scores, got %s then %s", outcome.Results[0].Record.ID, outcome.Results[1].Record.ID)
	}
	for _, res := range outcome.Results {
		if res.Record.Amount < 50000 {
			t.Fatalf("record %s below requested amount: %v", res.Record.ID, res.Record.Amount)
		}
		if res.Score != 1.0 {
			t.Fatalf("store scan results carry uniform score, got %v", res.Score)
		}
	}
	if len(obs.tiers) != 1 || obs.tiers[0] != domain.TierStoreScan {
		t.Fatalf("expected store scan observation, got %#v", obs.tiers)
	}
}

func TestRetrieveReturnsEmptyWhenEveryTierFails(t *testing.T) {
	store := &loanStoreFake{getAllErr: errBackendDown}
	engine := NewRetrievalEngine(store, &searchIndexFake{err: errBackendDown}, nil, DefaultRetrievalOptions(), nil)

	outcome := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "anything", 5)

	if outcome.Tier != domain.TierEmpty {
		t.Fatalf("expected empty tier, got %s", outcome.Tier)
	}
	if outcome.Results == nil || len(outcome.Results) != 0 {
		t.Fatalf("expected empty non-nil result set, got %#v", outcome.Results)
	}
}

func TestRetrieveWithoutIndexScansStore(t *testing.T) {
	store := &loanStoreFake{records: []domain.LoanRecord{
		loanFixture("a", domain.LoanStatusApproved, domain.LoanTypeAuto, 10000, 0),
	}}
	engine := NewRetrievalEngine(store, nil, nil, DefaultRetrievalOptions(), nil)

	outcome := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "all loans", 5)
	if outcome.Tier != domain.TierStoreScan || len(outcome.Results) != 1 {
		t.Fatalf("expected one store scan result, got %#v", outcome)
	}
}

func TestRetrieveCapsResultsAndReportsTotal(t *testing.T) {
	records := make([]domain.LoanRecord, 0, 60)
	for i := 0; i < 60; i++ {
		records = append(records, loanFixture(fmt.Sprintf("r%02d", i), domain.LoanStatusApproved, domain.LoanTypeAuto, 1000, time.Duration(i)*time.Minute))
	}
	engine := NewRetrievalEngine(&loanStoreFake{records: records}, nil, nil, DefaultRetrievalOptions(), nil)

	capped := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "", 0)
	if len(capped.Results) != MaxRetrievalResults {
		t.Fatalf("expected hard cap %d, got %d", MaxRetrievalResults, len(capped.Results))
	}
	if capped.TotalMatches != 60 {
		t.Fatalf("expected total matches 60, got %d", capped.TotalMatches)
	}

	limited := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "", 7)
	if len(limited.Results) != 7 {
		t.Fatalf("expected limit 7, got %d", len(limited.Results))
	}
	if limited.Results[0].Record.ID != "r59" {
		t.Fatalf("expected newest record first, got %s", limited.Results[0].Record.ID)
	}
}

func TestRetrieveOrdersByScoreThenCreation(t *testing.T) {
	older := loanFixture("old", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, 0)
	newer := loanFixture("new", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, time.Hour)
	best := loanFixture("best", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, -time.Hour)
	index := &searchIndexFake{hits: []ports.SearchHit{
		{Record: older, Score: 1},
		{Record: best, Score: 3},
		{Record: newer, Score: 1},
	}}
	engine := NewRetrievalEngine(nil, index, nil, DefaultRetrievalOptions(), nil)

	outcome := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "approved", 10)
	got := []string{}
	for i, res := range outcome.Results {
		got = append(got, res.Record.ID)
		if i > 0 && res.Score > outcome.Results[i-1].Score {
			t.Fatalf("scores must not increase: %#v", outcome.Results)
		}
	}
	want := []string{"best", "new", "old"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRetrieveFusesSemanticAndLexicalHits(t *testing.T) {
	a := loanFixture("a", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, 0)
	b := loanFixture("b", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, 0)
	c := loanFixture("c", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, 0)
	index := &searchIndexFake{
		hits:      []ports.SearchHit{{Record: a, Score: 9}, {Record: b, Score: 8}},
		vectorHit: []ports.SearchHit{{Record: b, Score: 0.9}, {Record: c, Score: 0.8}},
	}
	embedder := &embedderFake{}
	engine := NewRetrievalEngine(nil, index, embedder, DefaultRetrievalOptions(), nil)

	outcome := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "car purchase jane", 10)

	if len(outcome.Results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(outcome.Results))
	}
	if outcome.Results[0].Record.ID != "b" {
		t.Fatalf("expected record present in both lists first, got %s", outcome.Results[0].Record.ID)
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != "car purchase jane" {
		t.Fatalf("expected question to be embedded once, got %#v", embedder.texts)
	}
}

func TestRetrieveDegradesToLexicalWhenSemanticFails(t *testing.T) {
	a := loanFixture("a", domain.LoanStatusApproved, domain.LoanTypeAuto, 1, 0)
	index := &searchIndexFake{
		hits:      []ports.SearchHit{{Record: a, Score: 4}},
		vectorErr: errBackendDown,
	}
	engine := NewRetrievalEngine(nil, index, &embedderFake{}, DefaultRetrievalOptions(), nil)

	outcome := engine.Retrieve(context.Background(), domain.NewQueryIntent(), "car purchase", 10)
	if outcome.Tier != domain.TierIndex || len(outcome.Results) != 1 || outcome.Results[0].Score != 4 {
		t.Fatalf("expected lexical-only index result, got %#v", outcome)
	}
}

func TestRetrieveRelaxesUnconstrainedFreeText(t *testing.T) {
	index := &searchIndexFake{}
	engine := NewRetrievalEngine(nil, index, nil, DefaultRetrievalOptions(), nil)

	engine.Retrieve(context.Background(), domain.NewQueryIntent(), "portfolio overview please", 10)

	queries := index.lexicalQueries()
	if len(queries) != 2 {
		t.Fatalf("expected strict and relaxed queries, got %d", len(queries))
	}
	if queries[0].Text == "" || queries[1].Text != "" {
		t.Fatalf("expected relaxed query without text, got %q then %q", queries[0].Text, queries[1].Text)
	}
}

func TestMatchesIntentSemantics(t *testing.T) {
	rec := loanFixture("a", domain.LoanStatusPending, domain.LoanTypeAuto, 50000, 0)
	rec.CustomerName = "Jane Doe"
	rec.RiskScore = 70

	tests := []struct {
		name   string
		intent domain.QueryIntent
		want   bool
	}{
		{name: "inclusive min amount", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.MinAmount = floatPtr(50000) }), want: true},
		{name: "inclusive max amount", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.MaxAmount = floatPtr(50000) }), want: true},
		{name: "amount above", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.MinAmount = floatPtr(50000.01) }), want: false},
		{name: "status exact", intent: intentWith(func(q *domain.QueryIntent) { q.Filters[domain.FilterStatus] = "pending" }), want: true},
		{name: "status is case sensitive", intent: intentWith(func(q *domain.QueryIntent) { q.Filters[domain.FilterStatus] = "Pending" }), want: false},
		{name: "customer substring ignores case", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.CustomerName = "jane" }), want: true},
		{name: "customer mismatch", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.CustomerName = "john" }), want: false},
		{name: "high risk excludes 70", intent: NewQueryInterpreter().Parse("high risk loans"), want: false},
		{name: "risk max inclusive", intent: intentWith(func(q *domain.QueryIntent) { q.Parameters.MaxRiskScore = floatPtr(70) }), want: true},
	}

	for _, tc := range tests {
		if got := MatchesIntent(rec, tc.intent); got != tc.want {
			t.Fatalf("%s: MatchesIntent() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func intentWith(mutate func(*domain.QueryIntent)) domain.QueryIntent {
	intent := domain.NewQueryIntent()
	mutate(&intent)
	return intent
}
