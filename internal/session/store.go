package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/linephoto/core/logger"
)

const columns = `id, user_id, line_user_id, status, temp_image_url, temp_image_path,
	temp_latitude, temp_longitude, temp_comment, temp_address, version,
	created_at, updated_at, expires_at`

// Store reads and writes post_sessions.
type Store struct {
	db    *sqlx.DB
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// NewStore returns a Store whose new sessions expire after ttl.
func NewStore(db *sqlx.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		db:    db,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Active returns the newest non-terminal, unexpired session of lineUserID.
// Read failures are logged and reported as no session.
func (s *Store) Active(ctx context.Context, lineUserID string) (*Session, error) {
	var sess Session
	err := s.db.GetContext(ctx, &sess, `SELECT `+columns+`
		FROM post_sessions
		WHERE line_user_id = $1
		  AND status NOT IN ('completed', 'cancelled')
		  AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`, lineUserID, s.now())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.LogEvent(ctx, logger.SVCSessions, slog.LevelWarn, "session.active",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
				slog.String("cause", "read"),
			)
		}
		return nil, nil
	}
	return &sess, nil
}

// Create cancels every non-terminal session of lineUserID and opens a new
// photo_pending one, both in a single transaction.
func (s *Store) Create(ctx context.Context, lineUserID, accountID string) (*Session, error) {
	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session create: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE post_sessions
		SET status = 'cancelled', version = version + 1, updated_at = $2
		WHERE line_user_id = $1 AND status NOT IN ('completed', 'cancelled')`, lineUserID, now)
	if err != nil {
		return nil, fmt.Errorf("session create: cancel previous: %w", err)
	}
	cancelled, _ := res.RowsAffected()

	var sess Session
	err = tx.GetContext(ctx, &sess, `INSERT INTO post_sessions
		(id, user_id, line_user_id, status, version, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, 'photo_pending', 1, $4, $4, $5)
		RETURNING `+columns, s.newID(), accountID, lineUserID, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("session create: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("session create: commit: %w", err)
	}

	logger.LogEvent(ctx, logger.SVCSessions, slog.LevelInfo, "session.created",
		slog.String("status", "ok"),
		slog.String("session_id", sess.ID),
		slog.Int64("count", cancelled),
	)
	return &sess, nil
}

// Update applies p to session id and returns the new row. It returns nil, nil
// when the row no longer exists and ErrStale when p.ExpectedVersion mismatches.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*Session, error) {
	if p.Empty() {
		return nil, fmt.Errorf("session update: empty patch")
	}

	sets := make([]string, 0, 9)
	args := make([]any, 0, 10)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.TempImageURL != nil {
		add("temp_image_url", *p.TempImageURL)
	}
	if p.TempImagePath != nil {
		add("temp_image_path", *p.TempImagePath)
	}
	if p.TempLatitude != nil {
		add("temp_latitude", *p.TempLatitude)
	}
	if p.TempLongitude != nil {
		add("temp_longitude", *p.TempLongitude)
	}
	if p.TempComment != nil {
		add("temp_comment", *p.TempComment)
	}
	if p.TempAddress != nil {
		add("temp_address", *p.TempAddress)
	}
	add("updated_at", s.now())
	sets = append(sets, "version = version + 1")

	args = append(args, id)
	where := "id = $" + strconv.Itoa(len(args))
	if p.ExpectedVersion > 0 {
		args = append(args, p.ExpectedVersion)
		where += " AND version = $" + strconv.Itoa(len(args))
	}

	var sess Session
	err := s.db.GetContext(ctx, &sess, `UPDATE post_sessions SET `+strings.Join(sets, ", ")+
		` WHERE `+where+` RETURNING `+columns, args...)
	switch {
	case err == nil:
		return &sess, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("session update: %w", err)
	case p.ExpectedVersion == 0:
		return nil, nil
	}

	var current int64
	if err := s.db.GetContext(ctx, &current, `SELECT version FROM post_sessions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session update: version check: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCSessions, slog.LevelWarn, "session.updated",
		slog.String("status", "fail"),
		slog.String("session_id", id),
		slog.String("err_code", "STALE"),
		slog.Int64("count", current),
	)
	return nil, ErrStale
}
