package bankfeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType tags a linked bank account. Only credit and depository accounts
// participate in expense classification; everything else is unsupported.
type AccountType string

const (
	AccountCredit     AccountType = "credit"
	AccountDepository AccountType = "depository"
)

// Supported reports whether transactions on this account type can be
// classified at all.
func (t AccountType) Supported() bool {
	return t == AccountCredit || t == AccountDepository
}

// RawAccount is an account as returned by a provider, before normalization.
type RawAccount struct {
	ID               string          `json:"account_id"`
	Name             string          `json:"name"`
	Type             AccountType     `json:"type"`
	Subtype          string          `json:"subtype"`
	InstitutionName  string          `json:"institution_name"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

// RawTransaction is a transaction as returned by a provider. Amount keeps the
// provider's sign convention and Date keeps the provider's calendar-day
// string; both are resolved by the normalizer.
type RawTransaction struct {
	ID             string
	AccountID      string
	Amount         decimal.Decimal
	Date           string
	Description    string
	MerchantName   string
	CategoryLabels []string
	Pending        bool
}

// Candidate is the canonical shape of an external transaction after
// normalization. Amount is signed until classification normalizes it to an
// absolute value for expenses.
type Candidate struct {
	ExternalID      string          `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	Name            string          `json:"name"`
	MerchantName    string          `json:"merchant_name,omitempty"`
	CategoryLabels  []string        `json:"category_labels"`
	AccountName     string          `json:"account_name"`
	InstitutionName string          `json:"institution_name"`
	Pending         bool            `json:"pending"`
	AccountType     AccountType     `json:"-"`
}

// Decision is the outcome of classifying one candidate.
type Decision int

const (
	// NotExpense means the transaction is income, a payment, or a credit.
	NotExpense Decision = iota
	// Expense means the transaction is an outflow worth importing.
	Expense
	// Unsupported means the account type is outside the supported set.
	// Counted separately from NotExpense but skipped the same way.
	Unsupported
)

// Classifier decides whether a normalized transaction is an expense.
// Each provider has its own sign convention, so each provider supplies its
// own implementation.
type Classifier interface {
	Classify(c Candidate) Decision
}

// Connection is one linked institution credential, as stored on the budget.
type Connection struct {
	ID              string
	AccessToken     string
	InstitutionName string
}

// Provider is a bank aggregator: it lists accounts and transactions for one
// access credential, and knows how to classify its own transactions.
// Implementations are plain HTTP clients constructed explicitly and injected,
// so tests can substitute fakes.
type Provider interface {
	Name() string
	ListAccounts(ctx context.Context, accessToken string) ([]RawAccount, error)
	ListTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]RawTransaction, error)
	Classifier() Classifier
}
