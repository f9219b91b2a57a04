package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/domain"
)

// ExpenseStore is the slice of expense storage the expense endpoints need.
type ExpenseStore interface {
	Insert(ctx context.Context, expense *domain.Expense) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Expense, error)
	ListForBudget(ctx context.Context, budgetID uuid.UUID, since, until time.Time) ([]domain.Expense, error)
	Update(ctx context.Context, expense *domain.Expense) error
	Delete(ctx context.Context, budgetID, id uuid.UUID) error
	TotalsByCategory(ctx context.Context, budgetID uuid.UUID, since, until time.Time) ([]domain.CategoryTotal, error)
	Months(ctx context.Context, budgetID uuid.UUID) ([]string, error)
}

// CategoryChecker verifies a category belongs to a budget.
type CategoryChecker interface {
	Exists(ctx context.Context, budgetID, categoryID uuid.UUID) (bool, error)
}

// ExpensesHandler handles expense endpoints.
type ExpensesHandler struct {
	access     AccessChecker
	categories CategoryChecker
	expenses   ExpenseStore
	log        zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(access AccessChecker, categories CategoryChecker, expenses ExpenseStore, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{
		access:     access,
		categories: categories,
		expenses:   expenses,
		log:        log,
	}
}

type expenseRequest struct {
	CategoryID  uuid.UUID        `json:"category_id"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Date        string           `json:"date"`
}

// List handles GET /api/budgets/{id}/expenses?month=YYYY-MM
//
// An explicit start_date/end_date range (inclusive calendar days) wins over
// the month filter; without either the trailing 90 days are returned.
func (h *ExpensesHandler) List(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}

	var since, until time.Time
	query := r.URL.Query()
	switch {
	case query.Get("start_date") != "" || query.Get("end_date") != "":
		var rangeOK bool
		since, until, rangeOK = parseDateRange(w, r)
		if !rangeOK {
			return
		}
		if !until.IsZero() {
			// The store's window is half-open.
			until = until.AddDate(0, 0, 1)
		}
	case query.Get("month") != "":
		start, err := time.Parse("2006-01", query.Get("month"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM")
			return
		}
		since = start
		until = start.AddDate(0, 1, 0)
	default:
		since = time.Now().UTC().AddDate(0, 0, -90)
	}

	expenses, err := h.expenses.ListForBudget(r.Context(), budgetID, since, until)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// Create handles POST /api/budgets/{id}/expenses
func (h *ExpensesHandler) Create(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.CategoryID == uuid.Nil || req.Amount == nil || req.Description == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Category, amount, and description are required")
		return
	}
	if req.Amount.Sign() < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Amount cannot be negative")
		return
	}

	ctx := r.Context()
	exists, err := h.categories.Exists(ctx, budgetID, req.CategoryID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create expense")
		return
	}
	if !exists {
		middleware.WriteError(w, http.StatusBadRequest, "Category does not belong to this budget")
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := parseCalendarDate(req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	now := time.Now().UTC()
	expense := &domain.Expense{
		ID:          uuid.New(),
		BudgetID:    budgetID,
		CategoryID:  req.CategoryID,
		CreatedBy:   middleware.UserID(ctx),
		Amount:      *req.Amount,
		Description: req.Description,
		Date:        date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.expenses.Insert(ctx, expense); err != nil {
		writeDomainError(w, err, "Failed to create expense")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, expense)
}

// Update handles PUT /api/budgets/{id}/expenses/{expenseId}
func (h *ExpensesHandler) Update(w http.ResponseWriter, r *http.Request, rawBudgetID, rawExpenseID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	expenseID, ok := parseID(w, rawExpenseID, "expense id")
	if !ok {
		return
	}
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	expense, err := h.expenses.GetByID(ctx, expenseID)
	if err != nil || expense.BudgetID != budgetID {
		middleware.WriteError(w, http.StatusNotFound, "Expense not found")
		return
	}

	if req.CategoryID != uuid.Nil {
		exists, err := h.categories.Exists(ctx, budgetID, req.CategoryID)
		if err != nil || !exists {
			middleware.WriteError(w, http.StatusBadRequest, "Category does not belong to this budget")
			return
		}
		expense.CategoryID = req.CategoryID
	}
	if req.Amount != nil {
		if req.Amount.Sign() < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Amount cannot be negative")
			return
		}
		expense.Amount = *req.Amount
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		expense.Description = desc
	}
	if req.Date != "" {
		parsed, err := parseCalendarDate(req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		expense.Date = parsed
	}

	if err := h.expenses.Update(ctx, expense); err != nil {
		writeDomainError(w, err, "Failed to update expense")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, expense)
}

// Delete handles DELETE /api/budgets/{id}/expenses/{expenseId}
func (h *ExpensesHandler) Delete(w http.ResponseWriter, r *http.Request, rawBudgetID, rawExpenseID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	expenseID, ok := parseID(w, rawExpenseID, "expense id")
	if !ok {
		return
	}
	if err := h.expenses.Delete(r.Context(), budgetID, expenseID); err != nil {
		writeDomainError(w, err, "Failed to delete expense")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Totals handles GET /api/budgets/{id}/expenses/totals?month=YYYY-MM
//
// The current month is summarized when no month is given.
func (h *ExpensesHandler) Totals(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}

	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if month := r.URL.Query().Get("month"); month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM")
			return
		}
		since = parsed
	}
	until := since.AddDate(0, 1, 0)

	totals, err := h.expenses.TotalsByCategory(r.Context(), budgetID, since, until)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to total expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to total expenses")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":  since.Format("2006-01"),
		"totals": totals,
	})
}

// Months handles GET /api/budgets/{id}/expenses/months
func (h *ExpensesHandler) Months(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	months, err := h.expenses.Months(r.Context(), budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list expense months")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expense months")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"months": months})
}

func (h *ExpensesHandler) checkAccess(w http.ResponseWriter, r *http.Request, rawBudgetID string) (uuid.UUID, bool) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return uuid.Nil, false
	}
	allowed, err := h.access.HasAccess(r.Context(), middleware.UserID(r.Context()), budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check budget access")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check budget access")
		return uuid.Nil, false
	}
	if !allowed {
		middleware.WriteError(w, http.StatusForbidden, "Access denied")
		return uuid.Nil, false
	}
	return budgetID, true
}
