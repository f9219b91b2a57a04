package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TannerHolle/budget/internal/domain"
)

// InviteRepository persists budget invitations.
type InviteRepository struct {
	db *DB
}

func NewInviteRepository(db *DB) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO invites (id, email, budget_id, token, used, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invite.ID, invite.Email, invite.BudgetID, invite.Token,
		invite.Used, invite.ExpiresAt, invite.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("invite token: %w", domain.ErrDuplicate)
	}
	return err
}

func (r *InviteRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	return scanInvite(r.db.Pool.QueryRow(ctx,
		`SELECT id, email, budget_id, token, used, expires_at, created_at
		 FROM invites WHERE token = $1`, token))
}

// FindPending returns every unused, unexpired invite addressed to the email.
// Consumed during registration.
func (r *InviteRepository) FindPending(ctx context.Context, email string) ([]domain.Invite, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, email, budget_id, token, used, expires_at, created_at
		 FROM invites
		 WHERE email = LOWER($1) AND used = FALSE AND expires_at > CURRENT_TIMESTAMP
		 ORDER BY created_at ASC`,
		email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// MarkUsed consumes an invite. An invite already consumed by a concurrent
// registration reports domain.ErrNotFound, so redemption stays at most once.
func (r *InviteRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE invites SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInvite(row pgx.Row) (*domain.Invite, error) {
	inv := &domain.Invite{}
	err := row.Scan(&inv.ID, &inv.Email, &inv.BudgetID, &inv.Token,
		&inv.Used, &inv.ExpiresAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}
