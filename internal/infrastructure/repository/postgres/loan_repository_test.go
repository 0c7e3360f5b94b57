package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newLoanRepoWithMock(t *testing.T) (*LoanRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewLoanRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock, func() { _ = db.Close() }
}

func loanRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "customer_id", "customer_name", "customer_email", "loan_type", "amount",
		"term_months", "status", "risk_score", "risk_level", "purpose", "created_at", "updated_at",
	})
}

func newLoanInput() domain.LoanRecord {
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

func TestLoanRepositoryGetByIDMissingReturnsNil(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM loan_applications").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.GetByID(context.Background(), "missing")
	if rec != nil || err != nil {
		t.Fatalf("expected nil, nil; got %#v, %v", rec, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoanRepositoryGetAllScansRows(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	rows := loanRows().
		AddRow("id-1", "LA-2024-001", "c-1", "Jane Doe", "", "auto", 18000.0, 48, "pending", 25.0, "", "car", fixedNow, fixedNow).
		AddRow("id-2", "LA-2024-002", "c-2", "John Roe", "j@example.com", "business", 90000.0, 60, "approved", 75.0, "high", "", fixedNow, fixedNow)
	mock.ExpectQuery("ORDER BY created_at, id").
		WithArgs(0).
		WillReturnRows(rows)

	records, err := repo.GetAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].LoanType != domain.LoanTypeBusiness || records[1].RiskLevel != domain.RiskHigh {
		t.Fatalf("unexpected scanned record: %#v", records[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoanRepositoryGetAllWrapsBackendFailure(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM loan_applications").WithArgs(10).WillReturnError(sql.ErrConnDone)

	_, err := repo.GetAll(context.Background(), 10)
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestLoanRepositoryGetByFieldUsesWhitelistedColumn(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1")).
		WithArgs("approved").
		WillReturnRows(loanRows().AddRow("id-1", "LA-2024-001", "c-1", "Jane", "", "auto", 1.0, 12, "approved", 10.0, "", "", fixedNow, fixedNow))

	records, err := repo.GetByField(context.Background(), domain.FieldStatus, "approved")
	if err != nil || len(records) != 1 {
		t.Fatalf("GetByField() = %d, %v", len(records), err)
	}

	if _, err := repo.GetByField(context.Background(), "amount; DROP TABLE loan_applications", "x"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown field, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoanRepositoryCreateAllocatesApplicationID(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('loan_application_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO loan_applications").
		WithArgs(sqlmock.AnyArg(), "LA-2024-007", "cust-1", "Jane Doe", nil, "mortgage", 250000.0, 360, "pending", 22.0, nil, nil, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), newLoanInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ApplicationID != "LA-2024-007" || created.ID == "" {
		t.Fatalf("unexpected created record: %#v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoanRepositoryCreateMapsUniqueViolationToConflict(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	in := newLoanInput()
	in.ApplicationID = "LA-2024-001"
	mock.ExpectExec("INSERT INTO loan_applications").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), in)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoanRepositoryUpdateNotFound(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	status := domain.LoanStatusApproved
	_, err := repo.Update(context.Background(), "missing", domain.LoanPatch{Status: &status})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoanRepositoryUpdateAppliesPatch(t *testing.T) {
	repo, mock, done := newLoanRepoWithMock(t)
	defer done()

	created := fixedNow.Add(-time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("id-1").
		WillReturnRows(loanRows().AddRow("id-1", "LA-2024-001", "c-1", "Jane", "", "auto", 18000.0, 48, "pending", 25.0, "low", "", created, created))
	mock.ExpectExec("UPDATE loan_applications").
		WithArgs("id-1", "Jane", nil, "auto", 18000.0, 48, "approved", 80.0, nil, nil, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status := domain.LoanStatusApproved
	score := 80.0
	updated, err := repo.Update(context.Background(), "id-1", domain.LoanPatch{Status: &status, RiskScore: &score})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.EffectiveRiskLevel() != domain.RiskHigh || !updated.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected updated record: %#v", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(schemaLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS loan_applications").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatHistoryRepositoryRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChatHistoryRepository(db)

	mock.ExpectExec("INSERT INTO chat_history").
		WithArgs("h-1", "u-1", "q", "a", "simple", "fallback", 2, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM chat_history").
		WithArgs("u-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "question", "answer", "mode", "generation_path", "citation_count", "created_at"}).
			AddRow("h-1", "u-1", "q", "a", "simple", "fallback", 2, fixedNow))

	err = repo.Append(context.Background(), domain.ChatRecord{
		ID: "h-1", UserID: "u-1", Question: "q", Answer: "a",
		Mode: domain.ChatModeSimple, GenerationPath: domain.GenerationPathFallback, CitationCount: 2, CreatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	records, err := repo.ListByUser(context.Background(), "u-1", 5)
	if err != nil || len(records) != 1 || records[0].GenerationPath != domain.GenerationPathFallback {
		t.Fatalf("ListByUser() = %#v, %v", records, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
