package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anoint-auth/internal/domain"
)

// ProfileRepository es el store opcional de perfiles (display name + flag de admin).
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	Upsert(ctx context.Context, profile domain.Profile) error
}

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

func (r *PgProfileRepository) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	const query = `
		SELECT id, display_name, is_admin, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	var profile domain.Profile
	var displayName *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&displayName,
		&profile.IsAdmin,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, err
	}
	if displayName != nil {
		profile.DisplayName = *displayName
	}
	return profile, err
}

func (r *PgProfileRepository) Upsert(ctx context.Context, profile domain.Profile) error {
	const query = `
		INSERT INTO profiles (id, display_name, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			is_admin = EXCLUDED.is_admin,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		profile.ID,
		profile.DisplayName,
		profile.IsAdmin,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return err
}
