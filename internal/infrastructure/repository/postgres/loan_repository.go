package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const uniqueViolation = "23505"

const loanColumns = `id, application_id, customer_id, customer_name, COALESCE(customer_email, ''), loan_type, amount,
term_months, status, risk_score, COALESCE(risk_level, ''), COALESCE(purpose, ''), created_at, updated_at`

// filterColumns maps the filterable record fields to columns. Only these
// names are ever interpolated into SQL.
var filterColumns = map[string]string{
	domain.FieldStatus:        "status",
	domain.FieldLoanType:      "loan_type",
	domain.FieldCustomerID:    "customer_id",
	domain.FieldApplicationID: "application_id",
	domain.FieldCustomerName:  "customer_name",
}

type LoanRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.LoanStore = (*LoanRepository)(nil)

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db, now: time.Now}
}

func (r *LoanRepository) GetAll(ctx context.Context, limit int) ([]domain.LoanRecord, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+loanColumns+`
FROM loan_applications
ORDER BY created_at, id
LIMIT NULLIF($1, 0)
`, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list loans", err)
	}
	return collectLoans(rows)
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+loanColumns+`
FROM loan_applications
WHERE id = $1
`, id)

	rec, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "get loan", err)
	}
	return &rec, nil
}

func (r *LoanRepository) GetByField(ctx context.Context, field, value string) ([]domain.LoanRecord, error) {
	column, ok := filterColumns[field]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get loans by field", fmt.Errorf("unsupported field %q", field))
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+loanColumns+`
FROM loan_applications
WHERE `+column+` = $1
ORDER BY created_at, id
`, value)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "get loans by field", err)
	}
	return collectLoans(rows)
}

// Create draws a missing application id from loan_application_seq.
func (r *LoanRepository) Create(ctx context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.CreatedAt

	if strings.TrimSpace(rec.ApplicationID) == "" {
		var seq int64
		if err := r.db.QueryRowContext(ctx, `SELECT nextval('loan_application_seq')`).Scan(&seq); err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "allocate application id", err)
		}
		rec.ApplicationID = domain.FormatApplicationID(rec.CreatedAt, seq)
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO loan_applications (
	id, application_id, customer_id, customer_name, customer_email, loan_type, amount,
	term_months, status, risk_score, risk_level, purpose, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		rec.ID, rec.ApplicationID, rec.CustomerID, rec.CustomerName, nullableString(rec.CustomerEmail),
		string(rec.LoanType), rec.Amount, rec.TermMonths, string(rec.Status), rec.RiskScore,
		nullableString(string(rec.RiskLevel)), nullableString(rec.Purpose), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.WrapError(domain.ErrConflict, "create loan", fmt.Errorf("application id %s already exists", rec.ApplicationID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "insert loan", err)
	}
	return &rec, nil
}

// Update applies the patch under a row lock so concurrent patches serialize.
func (r *LoanRepository) Update(ctx context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "begin loan update", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanLoan(tx.QueryRowContext(ctx, `
SELECT `+loanColumns+`
FROM loan_applications
WHERE id = $1
FOR UPDATE
`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "update loan", errors.New(id))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "lock loan", err)
	}

	updated, err := patch.Apply(current, r.now())
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update loan", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE loan_applications
SET customer_name = $2, customer_email = $3, loan_type = $4, amount = $5, term_months = $6,
	status = $7, risk_score = $8, risk_level = $9, purpose = $10, updated_at = $11
WHERE id = $1
`,
		id, updated.CustomerName, nullableString(updated.CustomerEmail), string(updated.LoanType), updated.Amount,
		updated.TermMonths, string(updated.Status), updated.RiskScore, nullableString(string(updated.RiskLevel)),
		nullableString(updated.Purpose), updated.UpdatedAt,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "update loan", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "commit loan update", err)
	}
	return &updated, nil
}

type loanScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row loanScanner) (domain.LoanRecord, error) {
	var rec domain.LoanRecord
	var loanType, status, riskLevel string
	err := row.Scan(
		&rec.ID,
		&rec.ApplicationID,
		&rec.CustomerID,
		&rec.CustomerName,
		&rec.CustomerEmail,
		&loanType,
		&rec.Amount,
		&rec.TermMonths,
		&status,
		&rec.RiskScore,
		&riskLevel,
		&rec.Purpose,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return domain.LoanRecord{}, err
	}
	rec.LoanType = domain.LoanType(loanType)
	rec.Status = domain.LoanStatus(status)
	rec.RiskLevel = domain.RiskLevel(riskLevel)
	return rec, nil
}

func collectLoans(rows *sql.Rows) ([]domain.LoanRecord, error) {
	defer rows.Close()

	out := make([]domain.LoanRecord, 0)
	for rows.Next() {
		rec, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "iterate loans", err)
	}
	return out, nil
}
