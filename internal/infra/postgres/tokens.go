package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TannerHolle/budget/internal/domain"
)

// TokenRepository persists opaque bearer tokens issued at login and
// registration.
type TokenRepository struct {
	db *DB
}

func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO auth_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt,
	)
	return err
}

// Resolve returns the user behind a still-valid token. Expired and unknown
// tokens both report domain.ErrNotFound.
func (r *TokenRepository) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id FROM auth_tokens WHERE token = $1 AND expires_at > CURRENT_TIMESTAMP`,
		token,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token = $1`, token)
	return err
}

// PurgeExpired drops tokens past their expiry. Called opportunistically at
// startup.
func (r *TokenRepository) PurgeExpired(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at <= CURRENT_TIMESTAMP`)
	return err
}
