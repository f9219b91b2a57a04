package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/TannerHolle/budget/internal/domain"
)

// NetWorthRepository persists assets and liabilities.
type NetWorthRepository struct {
	db *DB
}

func NewNetWorthRepository(db *DB) *NetWorthRepository {
	return &NetWorthRepository{db: db}
}

func (r *NetWorthRepository) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO assets (id, name, value, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		asset.ID, asset.Name, asset.Value, asset.Type, asset.CreatedAt, asset.UpdatedAt,
	)
	return err
}

func (r *NetWorthRepository) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, value, type, created_at, updated_at
		 FROM assets ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Value, &a.Type, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *NetWorthRepository) UpdateAsset(ctx context.Context, asset *domain.Asset) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE assets SET name = $1, value = $2, type = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $4`,
		asset.Name, asset.Value, asset.Type, asset.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NetWorthRepository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NetWorthRepository) GetAsset(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	a := &domain.Asset{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, value, type, created_at, updated_at FROM assets WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Value, &a.Type, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *NetWorthRepository) GetLiability(ctx context.Context, id uuid.UUID) (*domain.Liability, error) {
	l := &domain.Liability{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, amount, type, created_at, updated_at FROM liabilities WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Amount, &l.Type, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *NetWorthRepository) CreateLiability(ctx context.Context, liability *domain.Liability) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO liabilities (id, name, amount, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		liability.ID, liability.Name, liability.Amount, liability.Type,
		liability.CreatedAt, liability.UpdatedAt,
	)
	return err
}

func (r *NetWorthRepository) ListLiabilities(ctx context.Context) ([]domain.Liability, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, amount, type, created_at, updated_at
		 FROM liabilities ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	liabilities := []domain.Liability{}
	for rows.Next() {
		var l domain.Liability
		if err := rows.Scan(&l.ID, &l.Name, &l.Amount, &l.Type, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		liabilities = append(liabilities, l)
	}
	return liabilities, rows.Err()
}

func (r *NetWorthRepository) UpdateLiability(ctx context.Context, liability *domain.Liability) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE liabilities SET name = $1, amount = $2, type = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $4`,
		liability.Name, liability.Amount, liability.Type, liability.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NetWorthRepository) DeleteLiability(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM liabilities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
