// Package post persists finalized photo posts.
package post

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Post is one row of posts.
type Post struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	SessionID sql.NullString `db:"session_id"`
	ImageURL  string         `db:"image_url"`
	ImagePath sql.NullString `db:"image_path"`
	Latitude  float64        `db:"latitude"`
	Longitude float64        `db:"longitude"`
	Comment   sql.NullString `db:"comment"`
	Address   sql.NullString `db:"address"`
	CreatedAt time.Time      `db:"created_at"`
}

const insertQuery = `INSERT INTO posts
	(id, user_id, session_id, image_url, image_path, latitude, longitude, comment, address)
	VALUES (:id, :user_id, :session_id, :image_url, :image_path, :latitude, :longitude, :comment, :address)
	RETURNING created_at`

// Insert stores p and fills CreatedAt. q may be a *sqlx.DB or a *sqlx.Tx.
func Insert(ctx context.Context, q sqlx.ExtContext, p *Post) error {
	query, args, err := sqlx.Named(insertQuery, p)
	if err != nil {
		return fmt.Errorf("post insert: bind: %w", err)
	}
	query = q.Rebind(query)
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("post insert: %w", err)
	}
	return nil
}
