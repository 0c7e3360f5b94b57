package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

var (
	errEmptyUserID  = errors.New("user id is required")
	errEmptyLoanID  = errors.New("loan id is required")
	errEmptyPatch   = errors.New("patch has no fields")
	errUnknownField = errors.New("unsupported filter field")
)

// LoanUseCase manages loan records and announces every change so the search
// index can follow. When no publisher is configured the indexer, if any, is
// called inline.
type LoanUseCase struct {
	store     ports.LoanStore
	publisher ports.EventPublisher
	indexer   ports.LoanIndexer
}

func NewLoanUseCase(store ports.LoanStore, publisher ports.EventPublisher, indexer ports.LoanIndexer) *LoanUseCase {
	return &LoanUseCase{store: store, publisher: publisher, indexer: indexer}
}

func (uc *LoanUseCase) Create(ctx context.Context, rec domain.LoanRecord) (*domain.LoanRecord, error) {
	rec.CustomerName = strings.TrimSpace(rec.CustomerName)
	rec.ApplicationID = strings.TrimSpace(rec.ApplicationID)
	if err := rec.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create loan", err)
	}

	created, err := uc.store.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}
	uc.announce(ctx, created.ID)
	return created, nil
}

func (uc *LoanUseCase) Update(ctx context.Context, id string, patch domain.LoanPatch) (*domain.LoanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update loan", errEmptyLoanID)
	}
	if patch.Empty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update loan", errEmptyPatch)
	}

	updated, err := uc.store.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update loan: %w", err)
	}
	uc.announce(ctx, updated.ID)
	return updated, nil
}

func (uc *LoanUseCase) Get(ctx context.Context, id string) (*domain.LoanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get loan", errEmptyLoanID)
	}
	rec, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return rec, nil
}

// List returns every record, or the records whose field equals value.
func (uc *LoanUseCase) List(ctx context.Context, field, value string) ([]domain.LoanRecord, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		records, err := uc.store.GetAll(ctx, MaxStoreScan)
		if err != nil {
			return nil, fmt.Errorf("list loans: %w", err)
		}
		return records, nil
	}
	if _, ok := (domain.LoanRecord{}).FieldValue(field); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list loans", fmt.Errorf("%w: %s", errUnknownField, field))
	}
	records, err := uc.store.GetByField(ctx, field, value)
	if err != nil {
		return nil, fmt.Errorf("list loans by %s: %w", field, err)
	}
	return records, nil
}

func (uc *LoanUseCase) announce(ctx context.Context, id string) {
	if uc.publisher != nil {
		if err := uc.publisher.PublishLoanChanged(ctx, id); err != nil {
			slog.Warn("loan_change_publish_failed", "loan_id", id, "error", err)
		}
		return
	}
	if uc.indexer != nil {
		if err := uc.indexer.IndexLoan(ctx, id); err != nil {
			slog.Warn("loan_inline_index_failed", "loan_id", id, "error", err)
		}
	}
}
