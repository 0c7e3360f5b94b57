package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

// seedLoan is one entry of a seed file. Entries may carry a 300-850 credit
// score instead of a risk score.
type seedLoan struct {
	domain.LoanRecord
	CreditScore *float64 `json:"credit_score,omitempty"`
}

// SeedFromFile loads a JSON array of loan records into store. Records whose
// application id already exists are skipped, so seeding can be repeated on
// every start. It returns the number of created records.
func SeedFromFile(ctx context.Context, store ports.LoanStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var entries []seedLoan
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return seedLoans(ctx, store, entries)
}

func seedLoans(ctx context.Context, store ports.LoanStore, entries []seedLoan) (int, error) {
	created := 0
	for i, entry := range entries {
		rec := entry.LoanRecord
		if entry.CreditScore != nil && rec.RiskScore == 0 {
			rec.RiskScore = domain.RiskScoreFromCreditScore(*entry.CreditScore)
		}
		if rec.RiskLevel == "" {
			rec.RiskLevel = domain.RiskLevelFor(rec.RiskScore)
		}
		if err := rec.Validate(); err != nil {
			return created, fmt.Errorf("seed entry %d: %w", i, err)
		}

		if _, err := store.Create(ctx, rec); err != nil {
			if domain.IsKind(err, domain.ErrConflict) {
				slog.Debug("seed_loan_exists", "application_id", rec.ApplicationID)
				continue
			}
			return created, fmt.Errorf("seed entry %d: %w", i, err)
		}
		created++
	}
	return created, nil
}
