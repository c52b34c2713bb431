package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/linephoto/core/logger"
	"github.com/m3rciful/linephoto/internal/post"
)

// Finalizer turns a session awaiting its comment into a post.
type Finalizer struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

// NewFinalizer returns a Finalizer writing through db.
func NewFinalizer(db *sqlx.DB) *Finalizer {
	return &Finalizer{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Finalize inserts the post built from s and marks s completed in one
// transaction. The post carries s.TempComment, so callers stage the comment
// before finalizing. A session that is no longer awaiting its comment yields
// ErrNotPending and nothing is written.
func (f *Finalizer) Finalize(ctx context.Context, s *Session) (*post.Post, error) {
	if !s.HasImage() || !s.HasLocation() {
		return nil, ErrIncomplete
	}
	p := &post.Post{
		ID:        f.newID(),
		UserID:    s.UserID,
		ImageURL:  s.TempImageURL.String,
		ImagePath: s.TempImagePath,
		Latitude:  s.TempLatitude.Float64,
		Longitude: s.TempLongitude.Float64,
		Comment:   s.TempComment,
		Address:   s.TempAddress,
	}
	p.SessionID.String, p.SessionID.Valid = s.ID, true

	start := time.Now()
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("finalize: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := post.Insert(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE post_sessions
		SET status = 'completed', version = version + 1, updated_at = $2
		WHERE id = $1 AND status = 'comment_pending'`, s.ID, f.now())
	if err != nil {
		return nil, fmt.Errorf("finalize: complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		logger.LogEvent(ctx, logger.SVCPosts, slog.LevelWarn, "post.finalize",
			slog.String("status", "fail"),
			slog.String("session_id", s.ID),
			slog.String("err_code", "NOT_PENDING"),
		)
		return nil, ErrNotPending
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("finalize: commit: %w", err)
	}

	logger.LogEvent(ctx, logger.SVCPosts, slog.LevelInfo, "post.finalize",
		slog.String("status", "ok"),
		slog.String("session_id", s.ID),
		slog.String("post_id", p.ID),
		slog.Bool("has_comment", p.Comment.Valid),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return p, nil
}
