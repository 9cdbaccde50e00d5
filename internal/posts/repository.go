package posts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Store is the persistence surface the pipeline depends on.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// Repository stores posts in Postgres.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const insertPost = `
INSERT INTO posts (
	id, user_id, video_url, thumbnail_url, sprite_url, sprite_parts, media_urls,
	post_type, description, brand_name, brand_url, commercial_type, is_commercial,
	width, height, processing_status
) VALUES (
	:id, :user_id, :video_url, :thumbnail_url, :sprite_url, :sprite_parts, :media_urls,
	:post_type, :description, :brand_name, :brand_url, :commercial_type, :is_commercial,
	:width, :height, :processing_status
)
RETURNING created_at`

// Create inserts rec and fills in CreatedAt.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	query, args, err := r.db.BindNamed(insertPost, rec)
	if err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&rec.CreatedAt); err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}
	return nil
}

const selectPost = `
SELECT id, user_id, video_url, thumbnail_url, sprite_url, sprite_parts, media_urls,
	post_type, description, brand_name, brand_url, commercial_type, is_commercial,
	width, height, processing_status, created_at
FROM posts
WHERE id = $1`

func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := r.db.GetContext(ctx, &rec, selectPost, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return &rec, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
