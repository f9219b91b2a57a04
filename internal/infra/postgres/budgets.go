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

// BudgetRepository persists budgets, their members, and their bank
// connections.
type BudgetRepository struct {
	db *DB
}

func NewBudgetRepository(db *DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Create inserts the budget and its members in one transaction so the
// owner-in-members invariant established by domain.NewBudget survives into
// storage atomically.
func (r *BudgetRepository) Create(ctx context.Context, budget *domain.Budget) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO budgets (id, name, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		budget.ID, budget.Name, budget.OwnerID, budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting budget: %w", err)
	}

	for _, m := range budget.Members {
		_, err = tx.Exec(ctx,
			`INSERT INTO budget_members (budget_id, user_id, role, added_at)
			 VALUES ($1, $2, $3, $4)`,
			budget.ID, m.UserID, m.Role, m.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting member: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// HasAccess reports whether the user owns or belongs to the budget. A
// missing budget reports false.
func (r *BudgetRepository) HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM budgets b
			LEFT JOIN budget_members m ON m.budget_id = b.id
			WHERE b.id = $1 AND (b.owner_id = $2 OR m.user_id = $2)
		)`,
		budgetID, userID,
	).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *BudgetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	budget := &domain.Budget{}
	var inviteCode *string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, owner_id, invite_code, created_at, updated_at
		 FROM budgets WHERE id = $1`, id,
	).Scan(&budget.ID, &budget.Name, &budget.OwnerID, &inviteCode, &budget.CreatedAt, &budget.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if inviteCode != nil {
		budget.InviteCode = *inviteCode
	}

	if budget.Members, err = r.members(ctx, id); err != nil {
		return nil, err
	}
	if budget.PlaidConnections, err = r.PlaidConnections(ctx, id); err != nil {
		return nil, err
	}
	if budget.TellerConnections, err = r.TellerConnections(ctx, id); err != nil {
		return nil, err
	}
	return budget, nil
}

// ListForUser returns every budget the user owns or belongs to, newest
// first. Members and connections are loaded per budget.
func (r *BudgetRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Budget, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT b.id, b.created_at FROM budgets b
		 LEFT JOIN budget_members m ON m.budget_id = b.id
		 WHERE b.owner_id = $1 OR m.user_id = $1
		 ORDER BY b.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	budgets := make([]*domain.Budget, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (r *BudgetRepository) members(ctx context.Context, budgetID uuid.UUID) ([]domain.Member, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT user_id, role, added_at FROM budget_members
		 WHERE budget_id = $1 ORDER BY added_at ASC`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.UserID, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership row. Re-adding an existing member is a
// no-op.
func (r *BudgetRepository) AddMember(ctx context.Context, budgetID, userID uuid.UUID, role domain.MemberRole) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO budget_members (budget_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (budget_id, user_id) DO NOTHING`,
		budgetID, userID, role,
	)
	return err
}

func (r *BudgetRepository) RemoveMember(ctx context.Context, budgetID, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM budget_members WHERE budget_id = $1 AND user_id = $2`,
		budgetID, userID,
	)
	return err
}

func (r *BudgetRepository) Rename(ctx context.Context, budgetID uuid.UUID, name string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE budgets SET name = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		name, budgetID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the budget. Members, connections, categories, and expenses
// go with it via cascading foreign keys.
func (r *BudgetRepository) Delete(ctx context.Context, budgetID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1`, budgetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BudgetRepository) SetInviteCode(ctx context.Context, budgetID uuid.UUID, code string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE budgets SET invite_code = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		code, budgetID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BudgetRepository) PlaidConnections(ctx context.Context, budgetID uuid.UUID) ([]domain.PlaidConnection, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT item_id, access_token, institution_id, institution_name
		 FROM plaid_connections WHERE budget_id = $1`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.PlaidConnection
	for rows.Next() {
		var c domain.PlaidConnection
		if err := rows.Scan(&c.ItemID, &c.AccessToken, &c.InstitutionID, &c.InstitutionName); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UpsertPlaidConnection adds a connection or refreshes the credential of an
// already-linked item.
func (r *BudgetRepository) UpsertPlaidConnection(ctx context.Context, budgetID uuid.UUID, conn domain.PlaidConnection) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO plaid_connections (budget_id, item_id, access_token, institution_id, institution_name)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (budget_id, item_id)
		 DO UPDATE SET access_token = EXCLUDED.access_token,
		               institution_name = EXCLUDED.institution_name`,
		budgetID, conn.ItemID, conn.AccessToken, conn.InstitutionID, conn.InstitutionName,
	)
	return err
}

func (r *BudgetRepository) RemovePlaidConnection(ctx context.Context, budgetID uuid.UUID, itemID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM plaid_connections WHERE budget_id = $1 AND item_id = $2`,
		budgetID, itemID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BudgetRepository) TellerConnections(ctx context.Context, budgetID uuid.UUID) ([]domain.TellerConnection, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT connection_id, access_token, institution_name
		 FROM teller_connections WHERE budget_id = $1`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.TellerConnection
	for rows.Next() {
		var c domain.TellerConnection
		if err := rows.Scan(&c.ConnectionID, &c.AccessToken, &c.InstitutionName); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *BudgetRepository) UpsertTellerConnection(ctx context.Context, budgetID uuid.UUID, conn domain.TellerConnection) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO teller_connections (budget_id, connection_id, access_token, institution_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (budget_id, connection_id)
		 DO UPDATE SET access_token = EXCLUDED.access_token,
		               institution_name = EXCLUDED.institution_name`,
		budgetID, conn.ConnectionID, conn.AccessToken, conn.InstitutionName,
	)
	return err
}

func (r *BudgetRepository) RemoveTellerConnection(ctx context.Context, budgetID uuid.UUID, connectionID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM teller_connections WHERE budget_id = $1 AND connection_id = $2`,
		budgetID, connectionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
