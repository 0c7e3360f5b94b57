package redis

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const (
	fieldID            = "id"
	fieldCustomerEmail = "customer_email"
	fieldTermMonths    = "term_months"
	fieldRiskLevel     = "risk_level"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldEmbedding     = "embedding"
	fieldVectorScore   = "vector_distance"
)

// returnFields is every stored field except the embedding blob.
var returnFields = []string{
	fieldID,
	domain.FieldApplicationID,
	domain.FieldCustomerID,
	domain.FieldCustomerName,
	fieldCustomerEmail,
	domain.FieldLoanType,
	domain.FieldAmount,
	fieldTermMonths,
	domain.FieldStatus,
	domain.FieldRiskScore,
	fieldRiskLevel,
	domain.FieldPurpose,
	fieldCreatedAt,
	fieldUpdatedAt,
}

// Timestamps are stored as unix nanoseconds: the numeric form sorts in the
// index and the string form round-trips exactly.
func encodeLoan(rec domain.LoanRecord) map[string]string {
	return map[string]string{
		fieldID:                   rec.ID,
		domain.FieldApplicationID: rec.ApplicationID,
		domain.FieldCustomerID:    rec.CustomerID,
		domain.FieldCustomerName:  rec.CustomerName,
		fieldCustomerEmail:        rec.CustomerEmail,
		domain.FieldLoanType:      string(rec.LoanType),
		domain.FieldAmount:        strconv.FormatFloat(rec.Amount, 'f', -1, 64),
		fieldTermMonths:           strconv.Itoa(rec.TermMonths),
		domain.FieldStatus:        string(rec.Status),
		domain.FieldRiskScore:     strconv.FormatFloat(rec.RiskScore, 'f', -1, 64),
		fieldRiskLevel:            string(rec.RiskLevel),
		domain.FieldPurpose:       rec.Purpose,
		fieldCreatedAt:            strconv.FormatInt(rec.CreatedAt.UnixNano(), 10),
		fieldUpdatedAt:            strconv.FormatInt(rec.UpdatedAt.UnixNano(), 10),
	}
}

func decodeLoan(fields map[string]string) (domain.LoanRecord, error) {
	rec := domain.LoanRecord{
		ID:            fields[fieldID],
		ApplicationID: fields[domain.FieldApplicationID],
		CustomerID:    fields[domain.FieldCustomerID],
		CustomerName:  fields[domain.FieldCustomerName],
		CustomerEmail: fields[fieldCustomerEmail],
		LoanType:      domain.LoanType(fields[domain.FieldLoanType]),
		Status:        domain.LoanStatus(fields[domain.FieldStatus]),
		RiskLevel:     domain.RiskLevel(fields[fieldRiskLevel]),
		Purpose:       fields[domain.FieldPurpose],
	}
	if rec.ID == "" {
		return domain.LoanRecord{}, fmt.Errorf("decode loan: missing id")
	}

	var err error
	if rec.Amount, err = parseFloat(fields, domain.FieldAmount); err != nil {
		return domain.LoanRecord{}, err
	}
	if rec.RiskScore, err = parseFloat(fields, domain.FieldRiskScore); err != nil {
		return domain.LoanRecord{}, err
	}
	if v := fields[fieldTermMonths]; v != "" {
		if rec.TermMonths, err = strconv.Atoi(v); err != nil {
			return domain.LoanRecord{}, fmt.Errorf("decode loan %s: term_months: %w", rec.ID, err)
		}
	}
	if rec.CreatedAt, err = parseTime(fields, fieldCreatedAt); err != nil {
		return domain.LoanRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(fields, fieldUpdatedAt); err != nil {
		return domain.LoanRecord{}, err
	}
	return rec, nil
}

func parseFloat(fields map[string]string, name string) (float64, error) {
	v := fields[name]
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("decode loan: %s: %w", name, err)
	}
	return f, nil
}

func parseTime(fields map[string]string, name string) (time.Time, error) {
	v := fields[name]
	if v == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode loan: %s: %w", name, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
