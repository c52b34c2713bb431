// Package session holds the post-session state machine, its Postgres store
// and the finalizer that turns a completed session into a post.
package session

import (
	"database/sql"
	"errors"
	"time"
)

// Status is the persisted state of a post session.
type Status string

const (
	StatusPhotoPending   Status = "photo_pending"
	StatusGPSPending     Status = "gps_pending"
	StatusCommentPending Status = "comment_pending"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SkipCommentKeyword finalizes a post without a comment.
const SkipCommentKeyword = "コメントなし"

var (
	// ErrStale is returned when an update carries an expected version that no longer matches.
	ErrStale = errors.New("session: stale version")
	// ErrIncomplete is returned when finalizing a session without image or location.
	ErrIncomplete = errors.New("session: missing staged fields")
	// ErrNotPending is returned when finalizing a session that is not awaiting a comment.
	ErrNotPending = errors.New("session: not awaiting comment")
)

// Session is one row of post_sessions.
type Session struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	LineUserID    string          `db:"line_user_id"`
	Status        Status          `db:"status"`
	TempImageURL  sql.NullString  `db:"temp_image_url"`
	TempImagePath sql.NullString  `db:"temp_image_path"`
	TempLatitude  sql.NullFloat64 `db:"temp_latitude"`
	TempLongitude sql.NullFloat64 `db:"temp_longitude"`
	TempComment   sql.NullString  `db:"temp_comment"`
	TempAddress   sql.NullString  `db:"temp_address"`
	Version       int64           `db:"version"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	ExpiresAt     time.Time       `db:"expires_at"`
}

// Active reports whether the session still accepts input at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && !s.Status.Terminal() && s.ExpiresAt.After(now)
}

// HasImage reports whether an image has been staged.
func (s *Session) HasImage() bool {
	return s != nil && s.TempImageURL.Valid && s.TempImageURL.String != ""
}

// HasLocation reports whether coordinates have been staged.
func (s *Session) HasLocation() bool {
	return s != nil && s.TempLatitude.Valid && s.TempLongitude.Valid
}

// Patch lists the fields an update touches. Nil pointers are left unchanged;
// a non-nil NullString with Valid=false writes NULL.
type Patch struct {
	Status        *Status
	TempImageURL  *string
	TempImagePath *string
	TempLatitude  *float64
	TempLongitude *float64
	TempComment   *sql.NullString
	TempAddress   *sql.NullString
	// ExpectedVersion, when non-zero, makes the update conditional on the row version.
	ExpectedVersion int64
}

// Empty reports whether p sets no column.
func (p Patch) Empty() bool {
	return p.Status == nil && p.TempImageURL == nil && p.TempImagePath == nil &&
		p.TempLatitude == nil && p.TempLongitude == nil && p.TempComment == nil && p.TempAddress == nil
}

// StatusPtr returns a pointer to s for use in a Patch.
func StatusPtr(s Status) *Status { return &s }

// Null returns an explicit NULL for a Patch field.
func Null() *sql.NullString { return &sql.NullString{} }

// Str returns a non-NULL string for a Patch field.
func Str(v string) *sql.NullString { return &sql.NullString{String: v, Valid: true} }
