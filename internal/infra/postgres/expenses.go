package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TannerHolle/budget/internal/domain"
)

// ExpenseRepository persists expenses.
type ExpenseRepository struct {
	db *DB
}

func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Insert writes an expense. A second insert carrying an already-stored
// external transaction id reports domain.ErrDuplicate; the partial unique
// index is the authoritative guard even when two syncs race.
func (r *ExpenseRepository) Insert(ctx context.Context, expense *domain.Expense) error {
	var externalID *string
	if expense.ExternalTransactionID != "" {
		externalID = &expense.ExternalTransactionID
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO expenses (id, budget_id, category_id, created_by, amount, description, date,
		                       external_transaction_id, account_name, institution_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		expense.ID, expense.BudgetID, expense.CategoryID, expense.CreatedBy,
		expense.Amount, expense.Description, expense.Date,
		externalID, nullable(expense.AccountName), nullable(expense.InstitutionName),
		expense.CreatedAt, expense.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", expense.ExternalTransactionID, domain.ErrDuplicate)
	}
	return err
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Expense, error) {
	return scanExpense(r.db.Pool.QueryRow(ctx, expenseColumns+` WHERE id = $1`, id))
}

// ListForBudget returns the budget's expenses in the given half-open date
// window, newest first. A zero until means no upper bound.
func (r *ExpenseRepository) ListForBudget(ctx context.Context, budgetID uuid.UUID, since, until time.Time) ([]domain.Expense, error) {
	query := expenseColumns + ` WHERE budget_id = $1 AND date >= $2`
	args := []any{budgetID, since}
	if !until.IsZero() {
		query += ` AND date < $3`
		args = append(args, until)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []domain.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (r *ExpenseRepository) Update(ctx context.Context, expense *domain.Expense) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE expenses
		 SET category_id = $1, amount = $2, description = $3, date = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $5 AND budget_id = $6`,
		expense.CategoryID, expense.Amount, expense.Description, expense.Date,
		expense.ID, expense.BudgetID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, budgetID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM expenses WHERE id = $1 AND budget_id = $2`, id, budgetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExternalIDs returns the set of external transaction ids already imported
// for the budget. This is the cheap dedup pass; the unique index on the
// column remains the authoritative guard at insert time.
func (r *ExpenseRepository) ExternalIDs(ctx context.Context, budgetID uuid.UUID) (map[string]struct{}, error) {
	existing := map[string]struct{}{}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT external_transaction_id FROM expenses
		 WHERE budget_id = $1 AND external_transaction_id IS NOT NULL`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// TotalsByCategory aggregates spend per category over the date window.
// Categories with no expenses in the window appear with a zero total.
func (r *ExpenseRepository) TotalsByCategory(ctx context.Context, budgetID uuid.UUID, since, until time.Time) ([]domain.CategoryTotal, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT c.id, c.budget_id, c.name, c.color, c.icon, c.allocation, c.rollover,
		        c.display_order, c.created_at, c.updated_at,
		        COALESCE(SUM(e.amount), 0), COUNT(e.id)
		 FROM categories c
		 LEFT JOIN expenses e ON e.category_id = c.id AND e.date >= $2 AND e.date < $3
		 WHERE c.budget_id = $1
		 GROUP BY c.id
		 ORDER BY c.display_order ASC, c.created_at ASC`,
		budgetID, since, until,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []domain.CategoryTotal{}
	for rows.Next() {
		var t domain.CategoryTotal
		c := &t.Category
		err := rows.Scan(&c.ID, &c.BudgetID, &c.Name, &c.Color, &c.Icon, &c.Allocation,
			&c.Rollover, &c.Order, &c.CreatedAt, &c.UpdatedAt, &t.Total, &t.Count)
		if err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Months lists the distinct calendar months that have at least one expense,
// newest first, as "YYYY-MM" strings.
func (r *ExpenseRepository) Months(ctx context.Context, budgetID uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT TO_CHAR(date AT TIME ZONE 'UTC', 'YYYY-MM') AS month
		 FROM expenses WHERE budget_id = $1
		 ORDER BY month DESC`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

const expenseColumns = `SELECT id, budget_id, category_id, created_by, amount, description, date,
       external_transaction_id, account_name, institution_name, created_at, updated_at
FROM expenses`

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	e := &domain.Expense{}
	var externalID, accountName, institutionName *string
	err := row.Scan(&e.ID, &e.BudgetID, &e.CategoryID, &e.CreatedBy, &e.Amount,
		&e.Description, &e.Date, &externalID, &accountName, &institutionName,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if externalID != nil {
		e.ExternalTransactionID = *externalID
	}
	if accountName != nil {
		e.AccountName = *accountName
	}
	if institutionName != nil {
		e.InstitutionName = *institutionName
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
