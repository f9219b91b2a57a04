package bankfeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TannerHolle/budget/internal/domain"
)

type fakeBudgetStore struct {
	allowed map[uuid.UUID]bool
}

func (f *fakeBudgetStore) HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error) {
	return f.allowed[userID], nil
}

type fakeCategoryStore struct {
	count int
	ids   map[uuid.UUID]bool
	calls int
}

func (f *fakeCategoryStore) CountForBudget(ctx context.Context, budgetID uuid.UUID) (int, error) {
	f.calls++
	return f.count, nil
}

func (f *fakeCategoryStore) Exists(ctx context.Context, budgetID, categoryID uuid.UUID) (bool, error) {
	return f.ids[categoryID], nil
}

type fakeExpenseStore struct {
	existing map[string]struct{}
	inserted []*domain.Expense
	failWith map[string]error
}

func (f *fakeExpenseStore) ExternalIDs(ctx context.Context, budgetID uuid.UUID) (map[string]struct{}, error) {
	if f.existing == nil {
		return map[string]struct{}{}, nil
	}
	return f.existing, nil
}

func (f *fakeExpenseStore) Insert(ctx context.Context, e *domain.Expense) error {
	if err, ok := f.failWith[e.ExternalTransactionID]; ok {
		return err
	}
	f.inserted = append(f.inserted, e)
	return nil
}

// fakeProvider serves canned accounts and transactions keyed by access token.
// The syncer fetches connections concurrently, so the call counter is guarded.
type fakeProvider struct {
	name         string
	accounts     map[string][]RawAccount
	transactions map[string][]RawTransaction
	errFor       map[string]error
	classifier   Classifier

	mu        sync.Mutex
	listCalls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ListAccounts(ctx context.Context, token string) ([]RawAccount, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if err := f.errFor[token]; err != nil {
		return nil, err
	}
	return f.accounts[token], nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeProvider) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]RawTransaction, error) {
	if err := f.errFor[token]; err != nil {
		return nil, err
	}
	return f.transactions[token], nil
}

func (f *fakeProvider) Classifier() Classifier { return f.classifier }

func newTestSyncer(budgets BudgetStore, categories CategoryStore, expenses ExpenseStore) *Syncer {
	return NewSyncer(budgets, categories, expenses, zerolog.Nop()).WithTimeout(time.Second)
}

func TestSyncer_AccessDenied(t *testing.T) {
	user := uuid.New()
	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{}},
		&fakeCategoryStore{count: 1},
		&fakeExpenseStore{},
	)

	_, err := s.Sync(context.Background(), SyncRequest{
		BudgetID: uuid.New(),
		UserID:   user,
		Provider: &fakeProvider{name: "plaid", classifier: PlaidClassifier{}},
	})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestSyncer_NoCategoriesBeforeNetworkCalls(t *testing.T) {
	user := uuid.New()
	provider := &fakeProvider{name: "plaid", classifier: PlaidClassifier{}}
	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 0},
		&fakeExpenseStore{},
	)

	_, err := s.Sync(context.Background(), SyncRequest{
		BudgetID:    uuid.New(),
		UserID:      user,
		Provider:    provider,
		Connections: []Connection{{ID: "c1", AccessToken: "tok"}},
	})
	require.ErrorIs(t, err, domain.ErrNoCategories)
	assert.Zero(t, provider.calls(), "no network call may happen before the precondition check")
}

func TestSyncer_NoConnections(t *testing.T) {
	user := uuid.New()
	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 1},
		&fakeExpenseStore{},
	)

	res, err := s.Sync(context.Background(), SyncRequest{
		BudgetID: uuid.New(),
		UserID:   user,
		Provider: &fakeProvider{name: "teller", classifier: TellerClassifier{}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Contains(t, res.Summary, "No teller connections")
}

func TestSyncer_ClassifiesAndDeduplicates(t *testing.T) {
	user := uuid.New()
	provider := &fakeProvider{
		name:       "plaid",
		classifier: PlaidClassifier{},
		accounts: map[string][]RawAccount{
			"tok": {
				{ID: "credit-1", Name: "Rewards Card", Type: AccountCredit, InstitutionName: "Example Bank"},
				{ID: "check-1", Name: "Checking", Type: AccountDepository, InstitutionName: "Example Bank"},
				{ID: "loan-1", Name: "Auto Loan", Type: AccountType("loan"), InstitutionName: "Example Bank"},
			},
		},
		transactions: map[string][]RawTransaction{
			"tok": {
				// Credit charge: expense.
				{ID: "t1", AccountID: "credit-1", Amount: decimal.RequireFromString("42.50"), Date: "2026-01-10", Description: "Grocer"},
				// Credit payment: not an expense.
				{ID: "t2", AccountID: "credit-1", Amount: decimal.RequireFromString("-200.00"), Date: "2026-01-11", Description: "Payment"},
				// Depository withdrawal: expense, but already imported.
				{ID: "t3", AccountID: "check-1", Amount: decimal.RequireFromString("-9.99"), Date: "2026-01-12", Description: "Streaming"},
				// Pending: always skipped.
				{ID: "t4", AccountID: "credit-1", Amount: decimal.RequireFromString("15.00"), Date: "2026-01-12", Description: "Pending charge", Pending: true},
				// Unsupported account type.
				{ID: "t5", AccountID: "loan-1", Amount: decimal.RequireFromString("300.00"), Date: "2026-01-13", Description: "Loan payment"},
				// Unknown account.
				{ID: "t6", AccountID: "ghost", Amount: decimal.RequireFromString("5.00"), Date: "2026-01-13", Description: "Mystery"},
			},
		},
	}

	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 3},
		&fakeExpenseStore{existing: map[string]struct{}{"t3": {}}},
	)

	res, err := s.Sync(context.Background(), SyncRequest{
		BudgetID:    uuid.New(),
		UserID:      user,
		Provider:    provider,
		Connections: []Connection{{ID: "c1", AccessToken: "tok", InstitutionName: "Example Bank"}},
	})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	got := res.Candidates[0]
	assert.Equal(t, "t1", got.ExternalID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("42.50")), "expense amount must be absolute")
	assert.Equal(t, "Rewards Card", got.AccountName)

	assert.Equal(t, 1, res.Skipped.Duplicate)
	assert.Equal(t, 1, res.Skipped.NotExpense)
	assert.Equal(t, 1, res.Skipped.Unsupported)
	assert.Equal(t, 1, res.Skipped.Pending)
	assert.Equal(t, 1, res.Skipped.MissingAccount)
	assert.Equal(t, 5, res.Skipped.Total())
}

func TestSyncer_RerunOverSameWindowIsIdempotent(t *testing.T) {
	user := uuid.New()
	provider := &fakeProvider{
		name:       "teller",
		classifier: TellerClassifier{},
		accounts: map[string][]RawAccount{
			"tok": {{ID: "a1", Name: "Checking", Type: AccountDepository}},
		},
		transactions: map[string][]RawTransaction{
			"tok": {{ID: "t1", AccountID: "a1", Amount: decimal.RequireFromString("-15.00"), Date: "2026-02-01", Description: "Lunch"}},
		},
	}
	expenses := &fakeExpenseStore{existing: map[string]struct{}{}}
	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 1},
		expenses,
	)
	req := SyncRequest{
		BudgetID:    uuid.New(),
		UserID:      user,
		Provider:    provider,
		Connections: []Connection{{ID: "c1", AccessToken: "tok"}},
	}

	first, err := s.Sync(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Candidates, 1)

	// Pretend the candidate was imported, then sync the identical window.
	expenses.existing["t1"] = struct{}{}

	second, err := s.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Candidates)
	assert.Equal(t, 1, second.Skipped.Duplicate)
}

func TestSyncer_FailingInstitutionDegradesGracefully(t *testing.T) {
	user := uuid.New()
	provider := &fakeProvider{
		name:       "teller",
		classifier: TellerClassifier{},
		accounts: map[string][]RawAccount{
			"good": {{ID: "a1", Name: "Checking", Type: AccountDepository, InstitutionName: "Good Bank"}},
		},
		transactions: map[string][]RawTransaction{
			"good": {{ID: "t1", AccountID: "a1", Amount: decimal.RequireFromString("-8.00"), Date: "2026-02-02", Description: "Bus fare"}},
		},
		errFor: map[string]error{"bad": errors.New("connection reset")},
	}

	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 1},
		&fakeExpenseStore{},
	)

	res, err := s.Sync(context.Background(), SyncRequest{
		BudgetID: uuid.New(),
		UserID:   user,
		Provider: provider,
		Connections: []Connection{
			{ID: "c1", AccessToken: "bad", InstitutionName: "Bad Bank"},
			{ID: "c2", AccessToken: "good", InstitutionName: "Good Bank"},
		},
	})
	require.NoError(t, err, "one failing institution must not fail the sync")
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "t1", res.Candidates[0].ExternalID)
}

func TestSyncer_InvalidRange(t *testing.T) {
	user := uuid.New()
	s := newTestSyncer(
		&fakeBudgetStore{allowed: map[uuid.UUID]bool{user: true}},
		&fakeCategoryStore{count: 1},
		&fakeExpenseStore{},
	)

	_, err := s.Sync(context.Background(), SyncRequest{
		BudgetID:  uuid.New(),
		UserID:    user,
		Provider:  &fakeProvider{name: "plaid", classifier: PlaidClassifier{}},
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}
