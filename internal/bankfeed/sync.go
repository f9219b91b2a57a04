package bankfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TannerHolle/budget/internal/domain"
)

// BudgetStore is the slice of budget storage the sync pipeline needs.
type BudgetStore interface {
	// HasAccess reports whether the user owns or belongs to the budget.
	// A budget lookup miss reports false, not an error.
	HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error)
}

// CategoryStore is the slice of category storage the sync pipeline needs.
type CategoryStore interface {
	CountForBudget(ctx context.Context, budgetID uuid.UUID) (int, error)
	Exists(ctx context.Context, budgetID, categoryID uuid.UUID) (bool, error)
}

// ExpenseStore is the slice of expense storage the sync pipeline needs.
type ExpenseStore interface {
	// ExternalIDs returns the set of external transaction ids already
	// imported for the budget.
	ExternalIDs(ctx context.Context, budgetID uuid.UUID) (map[string]struct{}, error)

	// Insert persists one expense. A collision on the external transaction
	// id uniqueness constraint returns domain.ErrDuplicate.
	Insert(ctx context.Context, e *domain.Expense) error
}

// DefaultSyncWindow is the trailing date range used when the caller does not
// supply one.
const DefaultSyncWindow = 30 * 24 * time.Hour

// DefaultConnectionTimeout bounds the calls to a single institution so one
// hung connection cannot stall the whole sync.
const DefaultConnectionTimeout = 30 * time.Second

// SyncRequest asks for new transactions for one budget over a date range.
type SyncRequest struct {
	BudgetID    uuid.UUID
	UserID      uuid.UUID
	StartDate   time.Time
	EndDate     time.Time
	Provider    Provider
	Connections []Connection
}

// SkipCounts breaks down why transactions were left out of the candidate
// list. The split exists for observability; everything counted here is
// treated identically downstream.
type SkipCounts struct {
	Duplicate      int `json:"duplicate"`
	NotExpense     int `json:"not_expense"`
	Unsupported    int `json:"unsupported"`
	Pending        int `json:"pending"`
	MissingAccount int `json:"missing_account"`
}

// Total is the overall number of skipped transactions.
func (s SkipCounts) Total() int {
	return s.Duplicate + s.NotExpense + s.Unsupported + s.Pending + s.MissingAccount
}

// SyncResult carries the candidates awaiting categorization plus a skip
// breakdown and a human-readable summary.
type SyncResult struct {
	Candidates []Candidate `json:"transactions"`
	Skipped    SkipCounts  `json:"skipped"`
	Summary    string      `json:"message"`
}

// Syncer runs the fetch -> normalize -> classify -> dedup pipeline for one
// budget at a time. Each call is independent; there is no background
// scheduling here.
type Syncer struct {
	budgets    BudgetStore
	categories CategoryStore
	expenses   ExpenseStore
	timeout    time.Duration
	log        zerolog.Logger
}

// NewSyncer wires a syncer with the default per-connection timeout.
func NewSyncer(budgets BudgetStore, categories CategoryStore, expenses ExpenseStore, log zerolog.Logger) *Syncer {
	return &Syncer{
		budgets:    budgets,
		categories: categories,
		expenses:   expenses,
		timeout:    DefaultConnectionTimeout,
		log:        log,
	}
}

// WithTimeout overrides the per-connection timeout. Used by tests.
func (s *Syncer) WithTimeout(d time.Duration) *Syncer {
	s.timeout = d
	return s
}

// Sync fetches transactions from every linked connection, normalizes and
// classifies them, filters out already-imported ones, and returns the rest
// for the caller to categorize. One failing institution is logged and
// omitted; it never fails the sync for the others.
func (s *Syncer) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	if req.BudgetID == uuid.Nil {
		return nil, fmt.Errorf("%w: budget id is required", domain.ErrValidation)
	}
	if req.Provider == nil {
		return nil, fmt.Errorf("%w: provider is required", domain.ErrValidation)
	}
	if req.EndDate.IsZero() {
		req.EndDate = time.Now().UTC()
	}
	if req.StartDate.IsZero() {
		req.StartDate = req.EndDate.Add(-DefaultSyncWindow)
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("%w: end date before start date", domain.ErrValidation)
	}

	ok, err := s.budgets.HasAccess(ctx, req.UserID, req.BudgetID)
	if err != nil {
		return nil, fmt.Errorf("checking budget access: %w", err)
	}
	if !ok {
		return nil, domain.ErrAccessDenied
	}

	// Precondition checked before any network call: with zero categories
	// there is nothing to assign imported transactions to.
	count, err := s.categories.CountForBudget(ctx, req.BudgetID)
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	if count == 0 {
		return nil, domain.ErrNoCategories
	}

	if len(req.Connections) == 0 {
		return &SyncResult{
			Candidates: []Candidate{},
			Summary:    fmt.Sprintf("No %s connections found", req.Provider.Name()),
		}, nil
	}

	existing, err := s.expenses.ExternalIDs(ctx, req.BudgetID)
	if err != nil {
		return nil, fmt.Errorf("loading imported transaction ids: %w", err)
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
		skipped    SkipCounts
	)
	classifier := req.Provider.Classifier()

	// Institutions are independent, so they are fetched concurrently.
	// Results are concatenated; there is no ordering requirement.
	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range req.Connections {
		conn := conn
		g.Go(func() error {
			connCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			cands, skips, err := s.syncConnection(connCtx, req.Provider, classifier, conn, req.StartDate, req.EndDate)
			if err != nil {
				// Upstream failure: this institution's results are
				// omitted and the sync continues for the others.
				s.log.Error().
					Err(err).
					Str("provider", req.Provider.Name()).
					Str("institution", conn.InstitutionName).
					Msg("Skipping institution after fetch failure")
				return nil
			}

			mu.Lock()
			candidates = append(candidates, cands...)
			skipped.NotExpense += skips.NotExpense
			skipped.Unsupported += skips.Unsupported
			skipped.Pending += skips.Pending
			skipped.MissingAccount += skips.MissingAccount
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fresh, duplicates := Partition(candidates, existing)
	skipped.Duplicate = len(duplicates)

	if fresh == nil {
		fresh = []Candidate{}
	}
	return &SyncResult{
		Candidates: fresh,
		Skipped:    skipped,
		Summary: fmt.Sprintf("Found %d transactions to categorize, skipped %d",
			len(fresh), skipped.Total()),
	}, nil
}

// syncConnection fetches and filters transactions for a single institution.
func (s *Syncer) syncConnection(ctx context.Context, provider Provider, classifier Classifier, conn Connection, start, end time.Time) ([]Candidate, SkipCounts, error) {
	var skips SkipCounts

	accounts, err := provider.ListAccounts(ctx, conn.AccessToken)
	if err != nil {
		return nil, skips, fmt.Errorf("listing accounts: %w", err)
	}
	accountsByID := make(map[string]RawAccount, len(accounts))
	for _, a := range accounts {
		if a.InstitutionName == "" {
			a.InstitutionName = conn.InstitutionName
		}
		accountsByID[a.ID] = a
	}

	transactions, err := provider.ListTransactions(ctx, conn.AccessToken, start, end)
	if err != nil {
		return nil, skips, fmt.Errorf("listing transactions: %w", err)
	}

	var candidates []Candidate
	for _, tx := range transactions {
		acct, ok := accountsByID[tx.AccountID]
		if !ok {
			skips.MissingAccount++
			continue
		}

		cand, err := Normalize(tx, acct)
		if err != nil {
			s.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Dropping unparseable transaction")
			skips.MissingAccount++
			continue
		}

		// Pending transactions are skipped regardless of classification.
		if cand.Pending {
			skips.Pending++
			continue
		}

		switch classifier.Classify(cand) {
		case Expense:
			cand.Amount = cand.Amount.Abs()
			candidates = append(candidates, cand)
		case Unsupported:
			skips.Unsupported++
		default:
			skips.NotExpense++
		}
	}

	return candidates, skips, nil
}
