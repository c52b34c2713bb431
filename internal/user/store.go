// Package user resolves LINE users to internal accounts.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// User is one row of users.
type User struct {
	ID          string         `db:"id"`
	LineUserID  string         `db:"line_user_id"`
	DisplayName sql.NullString `db:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

const userColumns = `id, line_user_id, display_name, avatar_url, created_at, updated_at`

// Store reads and writes users.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// FindByLineID returns the user with lineUserID, or nil when there is none.
func (s *Store) FindByLineID(ctx context.Context, lineUserID string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE line_user_id = $1`, lineUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user find: %w", err)
	}
	return &u, nil
}

type upserted struct {
	User
	Inserted bool `db:"inserted"`
}

// Upsert inserts u keyed by line_user_id. On conflict the stored row keeps
// its id and takes any non-NULL profile field of u. created reports whether
// the row is new.
func (s *Store) Upsert(ctx context.Context, u User) (*User, bool, error) {
	var row upserted
	err := s.db.GetContext(ctx, &row, `INSERT INTO users
		(id, line_user_id, display_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (line_user_id) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns+`, (xmax = 0) AS inserted`,
		u.ID, u.LineUserID, u.DisplayName, u.AvatarURL, u.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("user upsert: %w", err)
	}
	return &row.User, row.Inserted, nil
}

// UpdateProfile overwrites the profile fields of user id.
func (s *Store) UpdateProfile(ctx context.Context, id string, name, avatar sql.NullString, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users
		SET display_name = $2, avatar_url = $3, updated_at = $4
		WHERE id = $1`, id, name, avatar, at); err != nil {
		return fmt.Errorf("user update profile: %w", err)
	}
	return nil
}
