package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the teaching request does not exist.
var ErrNotFound = errors.New("request: not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new open teaching request.
func (r *Repository) Insert(ctx context.Context, creatorUserID, subject string) (Request, error) {
	const q = `
		INSERT INTO teaching_requests (created_by_user_id, subject)
		VALUES ($1, $2)
		RETURNING id, created_by_user_id, subject, status, created_at, updated_at
	`
	var req Request
	if err := r.pool.QueryRow(ctx, q, creatorUserID, subject).Scan(
		&req.ID, &req.CreatorUserID, &req.Subject, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return Request{}, fmt.Errorf("request: insert: %w", err)
	}
	return req, nil
}

// GetByID fetches a teaching request by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Request, error) {
	const q = `
		SELECT id, created_by_user_id, subject, status, created_at, updated_at
		FROM teaching_requests
		WHERE id = $1
	`
	var req Request
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&req.ID, &req.CreatorUserID, &req.Subject, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: query by id: %w", err)
	}
	return req, nil
}

// List returns requests matching the filters, newest first.
func (r *Repository) List(ctx context.Context, f Filters) ([]Request, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	const q = `
		SELECT id, created_by_user_id, subject, status, created_at, updated_at
		FROM teaching_requests
		WHERE ($1 = '' OR created_by_user_id::text = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, q, f.CreatorUserID, string(f.Status), f.PageSize, (f.Page-1)*f.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("request: list: %w", err)
	}
	defer rows.Close()

	items := []Request{}
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.CreatorUserID, &req.Subject, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("request: scan: %w", err)
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("request: iterate: %w", err)
	}

	const countQ = `
		SELECT COUNT(*) FROM teaching_requests
		WHERE ($1 = '' OR created_by_user_id::text = $1)
		  AND ($2 = '' OR status = $2)
	`
	var total int
	if err := r.pool.QueryRow(ctx, countQ, f.CreatorUserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("request: count: %w", err)
	}

	return items, total, nil
}
