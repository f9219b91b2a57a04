package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TannerHolle/budget/internal/domain"
)

// CategoryRepository persists spending categories.
type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO categories (id, budget_id, name, color, icon, allocation, rollover, display_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		category.ID, category.BudgetID, category.Name, category.Color, category.Icon,
		category.Allocation, category.Rollover, category.Order, category.CreatedAt, category.UpdatedAt,
	)
	return err
}

func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return scanCategory(r.db.Pool.QueryRow(ctx,
		`SELECT id, budget_id, name, color, icon, allocation, rollover, display_order, created_at, updated_at
		 FROM categories WHERE id = $1`, id))
}

// ListForBudget returns the budget's categories in display order.
func (r *CategoryRepository) ListForBudget(ctx context.Context, budgetID uuid.UUID) ([]domain.Category, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, budget_id, name, color, icon, allocation, rollover, display_order, created_at, updated_at
		 FROM categories WHERE budget_id = $1
		 ORDER BY display_order ASC, created_at ASC`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (r *CategoryRepository) Update(ctx context.Context, category *domain.Category) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE categories
		 SET name = $1, color = $2, icon = $3, allocation = $4, rollover = $5,
		     display_order = $6, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $7 AND budget_id = $8`,
		category.Name, category.Color, category.Icon, category.Allocation,
		category.Rollover, category.Order, category.ID, category.BudgetID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a category. Categories that still have expenses cannot be
// deleted because of the foreign key, which surfaces as an error here.
func (r *CategoryRepository) Delete(ctx context.Context, budgetID, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND budget_id = $2`, id, budgetID)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountForBudget reports how many categories the budget has.
func (r *CategoryRepository) CountForBudget(ctx context.Context, budgetID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM categories WHERE budget_id = $1`, budgetID,
	).Scan(&count)
	return count, err
}

// Exists reports whether the category belongs to the budget.
func (r *CategoryRepository) Exists(ctx context.Context, budgetID, categoryID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1 AND budget_id = $2)`,
		categoryID, budgetID,
	).Scan(&ok)
	return ok, err
}

func scanCategory(row pgx.Row) (*domain.Category, error) {
	c := &domain.Category{}
	err := row.Scan(&c.ID, &c.BudgetID, &c.Name, &c.Color, &c.Icon,
		&c.Allocation, &c.Rollover, &c.Order, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
