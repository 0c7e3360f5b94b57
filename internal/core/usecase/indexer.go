package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultIndexBatchSize = 100

// IndexLoanUseCase copies records from the store into the search index,
// embedding their text when an embedder is configured.
type IndexLoanUseCase struct {
	store     ports.LoanStore
	index     ports.SearchIndex
	embedder  ports.Embedder
	batchSize int
}

func NewIndexLoanUseCase(store ports.LoanStore, index ports.SearchIndex, embedder ports.Embedder) *IndexLoanUseCase {
	return &IndexLoanUseCase{
		store:     store,
		index:     index,
		embedder:  embedder,
		batchSize: defaultIndexBatchSize,
	}
}

func (uc *IndexLoanUseCase) IndexLoan(ctx context.Context, id string) error {
	rec, err := uc.loadLoan(ctx, id)
	if err != nil {
		return err
	}
	doc, err := uc.prepare(ctx, *rec)
	if err != nil {
		return err
	}
	if err := uc.index.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("index loan %s: %w", id, err)
	}
	return nil
}

// Reindex bulk-upserts the whole record store and returns the number of
// indexed records.
func (uc *IndexLoanUseCase) Reindex(ctx context.Context) (int, error) {
	records, err := uc.store.GetAll(ctx, MaxStoreScan)
	if err != nil {
		return 0, fmt.Errorf("load loans for reindex: %w", err)
	}

	indexed := 0
	for start := 0; start < len(records); start += uc.batchSize {
		end := min(start+uc.batchSize, len(records))
		docs := make([]ports.IndexDocument, 0, end-start)
		for _, rec := range records[start:end] {
			doc, err := uc.prepare(ctx, rec)
			if err != nil {
				return indexed, err
			}
			docs = append(docs, doc)
		}
		if err := uc.index.BulkUpsert(ctx, docs); err != nil {
			return indexed, fmt.Errorf("bulk index loans: %w", err)
		}
		indexed += len(docs)
	}
	slog.Info("loan_reindex_completed", "indexed", indexed)
	return indexed, nil
}

func (uc *IndexLoanUseCase) loadLoan(ctx context.Context, id string) (*domain.LoanRecord, error) {
	rec, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch loan by id: %w", err)
	}
	if rec == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch loan by id", errors.New(id))
	}
	return rec, nil
}

// prepare embeds the record text. Temporary embedding failures are returned so
// the caller can retry; any other failure indexes the record without a vector.
func (uc *IndexLoanUseCase) prepare(ctx context.Context, rec domain.LoanRecord) (ports.IndexDocument, error) {
	doc := ports.IndexDocument{Record: rec}
	if uc.embedder == nil {
		return doc, nil
	}
	vector, err := uc.embedder.Embed(ctx, rec.SearchText())
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			return ports.IndexDocument{}, fmt.Errorf("embed loan %s: %w", rec.ID, err)
		}
		slog.Warn("loan_embedding_skipped", "loan_id", rec.ID, "error", err)
		return doc, nil
	}
	doc.Vector = vector
	return doc, nil
}
