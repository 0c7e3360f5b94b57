package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*LoanStore, *mock.Client) {
	t.Helper()
	c, m := newTestClient(t, 0)
	store := NewLoanStore(c)
	store.now = func() time.Time { return fixedNow }
	return store, m
}

func newLoan() domain.LoanRecord {
	return domain.LoanRecord{
		CustomerID:   "cust-1",
		CustomerName: "Jane Doe",
		LoanType:     domain.LoanTypeMortgage,
		Amount:       250000,
		TermMonths:   360,
		Status:       domain.LoanStatusPending,
		RiskScore:    22,
	}
}

func TestLoanStoreCreateDrawsYearlySequence(t *testing.T) {
	store, m := newTestStore(t)
	gomock.InOrder(
		m.EXPECT().
			Do(gomock.Any(), mock.Match("INCR", "loan_seq:2024")).
			Return(mock.Result(mock.RedisInt64(7))),
		m.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SET" && cmd[1] == "loan_appid:LA-2024-007" && cmd[len(cmd)-1] == "NX"
			})).
			Return(mock.Result(mock.RedisString("OK"))),
		m.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "HSET" })).
			Return(mock.Result(mock.RedisInt64(14))),
	)

	created, err := store.Create(context.Background(), newLoan())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ApplicationID != "LA-2024-007" || created.ID == "" {
		t.Fatalf("unexpected identifiers: %+v", created)
	}
	if !created.CreatedAt.Equal(fixedNow) || !created.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected timestamps: %v %v", created.CreatedAt, created.UpdatedAt)
	}
}

func TestLoanStoreCreateRejectsTakenApplicationID(t *testing.T) {
	store, m := newTestStore(t)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "SET" })).
		Return(mock.Result(mock.RedisNil()))

	rec := newLoan()
	rec.ApplicationID = "LA-2024-001"
	_, err := store.Create(context.Background(), rec)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoanStoreGetByIDMissing(t *testing.T) {
	store, m := newTestStore(t)
	m.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "loan:nope")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	rec, err := store.GetByID(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("GetByID() = %v, %v; want nil, nil", rec, err)
	}
}

func TestLoanStoreUpdateMissingRecord(t *testing.T) {
	store, m := newTestStore(t)
	m.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "loan:nope")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	status := domain.LoanStatusApproved
	_, err := store.Update(context.Background(), "nope", domain.LoanPatch{Status: &status})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoanStoreUpdateAppliesPatch(t *testing.T) {
	store, m := newTestStore(t)
	stored := map[string]rueidis.RedisMessage{}
	pairs := loanFieldPairs("id-1", "LA-2024-001", "pending")
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].ToString()
		stored[k] = pairs[i+1]
	}
	m.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "loan:id-1")).
		Return(mock.Result(mock.RedisMap(stored)))
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "HSET" || cmd[1] != "loan:id-1" {
				return false
			}
			for i := 2; i+1 < len(cmd); i += 2 {
				if cmd[i] == domain.FieldStatus {
					return cmd[i+1] == "approved"
				}
			}
			return false
		})).
		Return(mock.Result(mock.RedisInt64(0)))

	status := domain.LoanStatusApproved
	updated, err := store.Update(context.Background(), "id-1", domain.LoanPatch{Status: &status})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != domain.LoanStatusApproved || !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("unexpected record: %+v", updated)
	}
}

func TestLoanStoreGetByFieldKeepsExactMatches(t *testing.T) {
	store, m := newTestStore(t)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "@customer_name:(jane doe)"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("loan:id-1"),
			mock.RedisArray(loanFieldPairs("id-1", "LA-2024-001", "pending")...),
		)))

	records, err := store.GetByField(context.Background(), domain.FieldCustomerName, "Jane Doe")
	if err != nil {
		t.Fatalf("GetByField() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "id-1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestLoanStoreGetByFieldRejectsUnknownField(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.GetByField(context.Background(), "amount", "1"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoanStoreGetAllWrapsBackendFailure(t *testing.T) {
	store, m := newTestStore(t)
	m.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" && cmd[2] == "*" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	if _, err := store.GetAll(context.Background(), 0); !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestChatHistoryAppendTrimsAndListReadsHead(t *testing.T) {
	c, m := newTestClient(t, 0)
	history := NewChatHistoryStore(c, 3)

	m.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(1)),
			mock.Result(mock.RedisString("OK")),
		})
	rec := domain.ChatRecord{ID: "1", UserID: "u", Question: "how many?", Answer: "two", CreatedAt: fixedNow}
	if err := history.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	payload, _ := json.Marshal(rec)
	m.EXPECT().
		Do(gomock.Any(), mock.Match("LRANGE", "chat_history:u", "0", "2")).
		Return(mock.Result(mock.RedisArray(mock.RedisString(string(payload)), mock.RedisString("not json"))))

	got, err := history.ListByUser(context.Background(), "u", 0)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 1 || got[0].Answer != "two" {
		t.Fatalf("unexpected history: %+v", got)
	}
}
