package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category is a spending bucket within a budget.
type Category struct {
	ID         uuid.UUID       `json:"id"`
	BudgetID   uuid.UUID       `json:"budget_id"`
	Name       string          `json:"name"`
	Color      string          `json:"color"`
	Icon       string          `json:"icon"`
	Allocation decimal.Decimal `json:"allocation"`
	Rollover   bool            `json:"rollover"`
	Order      int             `json:"order"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Default presentation for new categories.
const (
	DefaultCategoryColor = "#6366f1"
	DefaultCategoryIcon  = "💰"
)

// Expense is a single outflow recorded against a budget category.
// Amount is always non-negative; the sign convention of imported bank
// transactions is resolved before an Expense is created.
//
// ExternalTransactionID is set only for expenses imported from a bank feed
// and is unique across the whole system. It is the dedup key that makes
// re-running a sync idempotent.
type Expense struct {
	ID                    uuid.UUID       `json:"id"`
	BudgetID              uuid.UUID       `json:"budget_id"`
	CategoryID            uuid.UUID       `json:"category_id"`
	CreatedBy             uuid.UUID       `json:"created_by"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
	Date                  time.Time       `json:"date"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	AccountName           string          `json:"account_name,omitempty"`
	InstitutionName       string          `json:"institution_name,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CategoryTotal is one row of the spend-by-category aggregation.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}
