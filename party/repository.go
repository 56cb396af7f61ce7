package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested party does not exist.
var ErrNotFound = errors.New("party: not found")

// Repository provides read access to party profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a party profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, user_id::text, display_name, role, created_at
		FROM parties
		WHERE id = $1
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.DisplayName,
		&profile.Role,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("party: query by id: %w", err)
	}

	return profile, nil
}

// GetByUser fetches the party profile linked to a platform user.
func (r *Repository) GetByUser(ctx context.Context, userID string) (Profile, error) {
	const query = `
		SELECT id, user_id::text, display_name, role, created_at
		FROM parties
		WHERE user_id = $1
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.DisplayName,
		&profile.Role,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("party: query by user: %w", err)
	}

	return profile, nil
}
