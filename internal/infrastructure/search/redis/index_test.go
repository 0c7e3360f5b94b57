package redis

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

func newTestClient(t *testing.T, vectorDim int) (*Client, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := mock.NewClient(ctrl)
	return newWithClient(m, Config{VectorDim: vectorDim}), m
}

func loanFieldPairs(id, appID, status string) []rueidis.RedisMessage {
	return []rueidis.RedisMessage{
		mock.RedisString(fieldID), mock.RedisString(id),
		mock.RedisString(domain.FieldApplicationID), mock.RedisString(appID),
		mock.RedisString(domain.FieldCustomerID), mock.RedisString("c-1"),
		mock.RedisString(domain.FieldCustomerName), mock.RedisString("Jane Doe"),
		mock.RedisString(domain.FieldLoanType), mock.RedisString("auto"),
		mock.RedisString(domain.FieldStatus), mock.RedisString(status),
		mock.RedisString(domain.FieldAmount), mock.RedisString("18000.5"),
		mock.RedisString(fieldTermMonths), mock.RedisString("48"),
		mock.RedisString(domain.FieldRiskScore), mock.RedisString("25"),
		mock.RedisString(fieldCreatedAt), mock.RedisString("1717200000000000000"),
		mock.RedisString(fieldUpdatedAt), mock.RedisString("1717200000000000000"),
	}
}

func f64(v float64) *float64 { return &v }

func TestBuildQueryStringCombinesFiltersAndBoostedText(t *testing.T) {
	q := ports.SearchQuery{
		Terms:  []ports.TermFilter{{Field: domain.FieldStatus, Value: "pending"}},
		Ranges: []ports.RangeFilter{{Field: domain.FieldAmount, Min: f64(1000)}},
		Text:   "car purchase",
		Fields: []ports.TextField{
			{Name: domain.FieldCustomerName, Boost: 3},
			{Name: domain.FieldLoanType, Boost: 2},
			{Name: domain.FieldPurpose, Boost: 1},
		},
		Fuzzy: true,
	}

	want := "@status:{pending} @amount:[1000 +inf] ~((" +
		"(@customer_name:(car|%purchase%))=>{$weight: 3} | " +
		"(@loan_type:{car|purchase})=>{$weight: 2} | " +
		"@purpose:(car|%purchase%)))"
	if got := buildQueryString(q); got != want {
		t.Fatalf("buildQueryString()\n got %s\nwant %s", got, want)
	}
}

func TestBuildQueryStringKeepsFilterOnlyRecall(t *testing.T) {
	q := ports.SearchQuery{
		Ranges: []ports.RangeFilter{{Field: domain.FieldAmount, Min: f64(50000)}},
		Text:   "find larger 50k",
		Fields: []ports.TextField{{Name: domain.FieldPurpose, Boost: 1}},
		Fuzzy:  true,
	}

	got := buildQueryString(q)
	if !strings.HasPrefix(got, "@amount:[50000 +inf] ~(") || !strings.HasSuffix(got, ")") {
		t.Fatalf("text must only rank the filtered set, got %s", got)
	}
	if strings.Count(got, "~") != 1 {
		t.Fatalf("expected a single optional text group, got %s", got)
	}
}

func TestBuildQueryStringRequiresTextWithoutFilters(t *testing.T) {
	q := ports.SearchQuery{Text: "tuition", Fields: []ports.TextField{{Name: domain.FieldPurpose, Boost: 1}}}
	if got := buildQueryString(q); got != "@purpose:(tuition)" {
		t.Fatalf("buildQueryString() = %s", got)
	}
}

func TestBuildQueryStringEscapesTagsAndPrefixesNames(t *testing.T) {
	q := ports.SearchQuery{
		Terms:        []ports.TermFilter{{Field: domain.FieldApplicationID, Value: "LA-2024-001"}},
		Ranges:       []ports.RangeFilter{{Field: domain.FieldRiskScore, Min: f64(70.5), Max: f64(100)}},
		CustomerName: "John  Smith",
	}

	want := `@application_id:{LA\-2024\-001} @risk_score:[70.5 100] @customer_name:(john* smith*)`
	if got := buildQueryString(q); got != want {
		t.Fatalf("buildQueryString() = %s, want %s", got, want)
	}
}

func TestBuildQueryStringMatchesAllWithoutConstraints(t *testing.T) {
	if got := buildQueryString(ports.SearchQuery{Text: "   "}); got != "*" {
		t.Fatalf("expected match-all query, got %q", got)
	}
}

func TestLexicalArgsSortFilterOnlyQueriesByRecency(t *testing.T) {
	args := lexicalArgs(ports.SearchQuery{Terms: []ports.TermFilter{{Field: domain.FieldStatus, Value: "approved"}}, Limit: 5})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "SORTBY created_at DESC") || !strings.Contains(joined, "LIMIT 0 5") {
		t.Fatalf("unexpected args: %s", joined)
	}
	if slices.Contains(args, fieldEmbedding) {
		t.Fatalf("embedding must not be returned: %s", joined)
	}
}

func TestQueryParsesScoredHits(t *testing.T) {
	c, m := newTestClient(t, 0)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == defaultIndexName && slices.Contains(cmd, "WITHSCORES")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(3),
			mock.RedisString("loan:id-1"),
			mock.RedisString("2.5"),
			mock.RedisArray(loanFieldPairs("id-1", "LA-2024-001", "pending")...),
		)))

	resp, err := NewSearchIndex(c).Query(context.Background(), ports.SearchQuery{Text: "auto", Fields: []ports.TextField{{Name: domain.FieldPurpose, Boost: 1}}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Total != 3 || len(resp.Hits) != 1 {
		t.Fatalf("unexpected response: total=%d hits=%d", resp.Total, len(resp.Hits))
	}
	hit := resp.Hits[0]
	if hit.Score != 2.5 || hit.Record.ApplicationID != "LA-2024-001" || hit.Record.Amount != 18000.5 || hit.Record.TermMonths != 48 {
		t.Fatalf("unexpected hit: %+v", hit)
	}
	if hit.Record.CreatedAt.Year() != 2024 {
		t.Fatalf("unexpected created_at: %v", hit.Record.CreatedAt)
	}
}

func TestLexicalArgsRequestHighlightsForTextQueries(t *testing.T) {
	withText := strings.Join(lexicalArgs(ports.SearchQuery{
		Text:   "car",
		Fields: []ports.TextField{{Name: domain.FieldPurpose, Boost: 1}},
		Limit:  5,
	}), " ")
	if !strings.Contains(withText, "HIGHLIGHT FIELDS 2 customer_name purpose TAGS <b> </b>") {
		t.Fatalf("expected highlight clause, got %s", withText)
	}

	filterOnly := strings.Join(lexicalArgs(ports.SearchQuery{Limit: 5}), " ")
	if strings.Contains(filterOnly, "HIGHLIGHT") {
		t.Fatalf("filter-only query must not highlight: %s", filterOnly)
	}
}

func TestQueryMapsHighlightedFields(t *testing.T) {
	c, m := newTestClient(t, 0)
	fields := append(loanFieldPairs("id-1", "LA-2024-001", "pending"),
		mock.RedisString(domain.FieldPurpose), mock.RedisString("used <b>car</b> purchase"))
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && slices.Contains(cmd, "HIGHLIGHT")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("loan:id-1"),
			mock.RedisString("1.5"),
			mock.RedisArray(fields...),
		)))

	resp, err := NewSearchIndex(c).Query(context.Background(), ports.SearchQuery{
		Text:   "car",
		Fields: []ports.TextField{{Name: domain.FieldPurpose, Boost: 1}},
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(resp.Hits))
	}
	hit := resp.Hits[0]
	if hit.Highlights[domain.FieldPurpose] != "used <b>car</b> purchase" {
		t.Fatalf("unexpected highlights: %#v", hit.Highlights)
	}
	if _, ok := hit.Highlights[domain.FieldCustomerName]; ok {
		t.Fatalf("customer name had no match: %#v", hit.Highlights)
	}
	if hit.Record.Purpose != "used car purchase" || hit.Record.CustomerName != "Jane Doe" {
		t.Fatalf("record must carry plain values: %+v", hit.Record)
	}
}

func TestQueryKNNConvertsDistanceToSimilarity(t *testing.T) {
	c, m := newTestClient(t, 2)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && strings.Contains(cmd[2], "[KNN 4 @embedding $BLOB AS vector_distance]") &&
				strings.HasPrefix(cmd[2], "(@status:{pending})") && slices.Contains(cmd, "PARAMS")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("loan:id-1"),
			mock.RedisArray(append(loanFieldPairs("id-1", "LA-2024-001", "pending"),
				mock.RedisString(fieldVectorScore), mock.RedisString("0.25"))...),
		)))

	resp, err := NewSearchIndex(c).Query(context.Background(), ports.SearchQuery{
		Terms:  []ports.TermFilter{{Field: domain.FieldStatus, Value: "pending"}},
		Vector: []float32{0.1, 0.2},
		Limit:  4,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].Score != 0.75 {
		t.Fatalf("unexpected hits: %+v", resp.Hits)
	}
}

func TestQueryRejectsVectorWithoutVectorField(t *testing.T) {
	c, _ := newTestClient(t, 0)
	if _, err := NewSearchIndex(c).Query(context.Background(), ports.SearchQuery{Vector: []float32{1}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestQueryWrapsConnectionFailure(t *testing.T) {
	c, m := newTestClient(t, 0)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := NewSearchIndex(c).Query(context.Background(), ports.SearchQuery{})
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestEnsureIndexToleratesExistingIndex(t *testing.T) {
	c, m := newTestClient(t, 768)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == defaultIndexName &&
				slices.Contains(cmd, "VECTOR") && slices.Contains(cmd, "768")
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	if err := c.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
}

func TestUpsertWritesEmbedding(t *testing.T) {
	c, m := newTestClient(t, 2)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "loan:id-1" && slices.Contains(cmd, fieldEmbedding)
		})).
		Return(mock.Result(mock.RedisInt64(15)))

	doc := ports.IndexDocument{Record: domain.LoanRecord{ID: "id-1", Status: domain.LoanStatusPending}, Vector: []float32{0.5, 0.5}}
	if err := NewSearchIndex(c).Upsert(context.Background(), doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestBulkUpsertReportsFailingRecord(t *testing.T) {
	c, m := newTestClient(t, 0)
	m.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(14)),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	err := NewSearchIndex(c).BulkUpsert(context.Background(), []ports.IndexDocument{
		{Record: domain.LoanRecord{ID: "a"}},
		{Record: domain.LoanRecord{ID: "b"}},
	})
	if !domain.IsKind(err, domain.ErrBackendUnavailable) || !strings.Contains(err.Error(), "loan b") {
		t.Fatalf("unexpected error: %v", err)
	}
}
