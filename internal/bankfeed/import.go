package bankfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TannerHolle/budget/internal/domain"
)

// ImportEntry pairs one synced candidate with the category the user chose
// for it.
type ImportEntry struct {
	Candidate  Candidate `json:"transaction"`
	CategoryID uuid.UUID `json:"category_id"`
}

// ImportFailure records one entry that could not be persisted. The batch
// continues past it.
type ImportFailure struct {
	ExternalID string `json:"transaction_id"`
	Reason     string `json:"reason"`
}

// ImportResult summarizes a bulk import batch.
type ImportResult struct {
	Created           int              `json:"created"`
	Expenses          []domain.Expense `json:"expenses"`
	SkippedNoCategory int              `json:"skipped_no_category"`
	Failures          []ImportFailure  `json:"failures,omitempty"`
}

// Importer persists caller-approved candidates as expense records.
type Importer struct {
	budgets    BudgetStore
	categories CategoryStore
	expenses   ExpenseStore
	log        zerolog.Logger
}

// NewImporter wires a bulk import writer.
func NewImporter(budgets BudgetStore, categories CategoryStore, expenses ExpenseStore, log zerolog.Logger) *Importer {
	return &Importer{
		budgets:    budgets,
		categories: categories,
		expenses:   expenses,
		log:        log,
	}
}

// BulkImport creates one expense per entry. Partial success is the designed
// behavior: an entry without a category is skipped, a per-row persistence
// failure (including an external-id uniqueness collision from a concurrent
// sync) is recorded, and every other entry is still attempted.
func (im *Importer) BulkImport(ctx context.Context, budgetID, userID uuid.UUID, entries []ImportEntry) (*ImportResult, error) {
	if budgetID == uuid.Nil {
		return nil, fmt.Errorf("%w: budget id is required", domain.ErrValidation)
	}

	ok, err := im.budgets.HasAccess(ctx, userID, budgetID)
	if err != nil {
		return nil, fmt.Errorf("checking budget access: %w", err)
	}
	if !ok {
		return nil, domain.ErrAccessDenied
	}

	result := &ImportResult{Expenses: []domain.Expense{}}

	for _, entry := range entries {
		if entry.CategoryID == uuid.Nil {
			result.SkippedNoCategory++
			continue
		}

		exists, err := im.categories.Exists(ctx, budgetID, entry.CategoryID)
		if err != nil {
			result.Failures = append(result.Failures, ImportFailure{
				ExternalID: entry.Candidate.ExternalID,
				Reason:     fmt.Sprintf("checking category: %v", err),
			})
			continue
		}
		if !exists {
			result.SkippedNoCategory++
			continue
		}

		now := time.Now().UTC()
		expense := domain.Expense{
			ID:                    uuid.New(),
			BudgetID:              budgetID,
			CategoryID:            entry.CategoryID,
			CreatedBy:             userID,
			Amount:                entry.Candidate.Amount.Abs(),
			Description:           entry.Candidate.Name,
			Date:                  entry.Candidate.Date,
			ExternalTransactionID: entry.Candidate.ExternalID,
			AccountName:           entry.Candidate.AccountName,
			InstitutionName:       entry.Candidate.InstitutionName,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		if err := im.expenses.Insert(ctx, &expense); err != nil {
			reason := "persistence failure"
			if errors.Is(err, domain.ErrDuplicate) {
				reason = "already imported"
			}
			im.log.Warn().
				Err(err).
				Str("transaction_id", entry.Candidate.ExternalID).
				Msg("Skipping entry in bulk import")
			result.Failures = append(result.Failures, ImportFailure{
				ExternalID: entry.Candidate.ExternalID,
				Reason:     reason,
			})
			continue
		}

		result.Created++
		result.Expenses = append(result.Expenses, expense)
	}

	return result, nil
}
