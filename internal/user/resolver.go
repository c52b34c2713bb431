package user

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/linephoto/core/line/gateway"
	"github.com/m3rciful/linephoto/core/logger"
)

// Accounts is the persistence the Resolver needs.
type Accounts interface {
	FindByLineID(ctx context.Context, lineUserID string) (*User, error)
	Upsert(ctx context.Context, u User) (*User, bool, error)
	UpdateProfile(ctx context.Context, id string, name, avatar sql.NullString, at time.Time) error
}

// Profiles fetches LINE profiles and links rich menus.
type Profiles interface {
	Profile(ctx context.Context, userID string) (gateway.Profile, error)
	LinkRichMenu(ctx context.Context, userID, richMenuID string) error
}

// Enqueuer runs background work, normally a *sender.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Accounts Accounts
	Profiles Profiles
	Jobs     Enqueuer
	// RichMenuID is linked to users on creation when non-empty.
	RichMenuID string
	// RefreshAfter re-fetches the profile of users older than this; zero disables.
	RefreshAfter time.Duration
}

// Resolver maps LINE user ids to account ids, creating accounts lazily.
type Resolver struct {
	opts  ResolverOptions
	now   func() time.Time
	newID func() string
}

// NewResolver builds a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Ensure returns the account id for lineUserID. A missing profile never
// blocks creation; only storage failures are returned.
func (r *Resolver) Ensure(ctx context.Context, lineUserID string) (string, error) {
	existing, err := r.opts.Accounts.FindByLineID(ctx, lineUserID)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelError, "user.ensure",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("cause", "lookup"),
		)
		return "", err
	}
	if existing != nil {
		if r.opts.RefreshAfter > 0 && r.now().Sub(existing.UpdatedAt) > r.opts.RefreshAfter {
			r.scheduleRefresh(ctx, existing.ID, lineUserID)
		}
		return existing.ID, nil
	}

	u := User{ID: r.newID(), LineUserID: lineUserID, UpdatedAt: r.now()}
	if p, err := r.opts.Profiles.Profile(ctx, lineUserID); err == nil {
		u.DisplayName = nullable(p.DisplayName)
		u.AvatarURL = nullable(p.PictureURL)
	} else {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelWarn, "user.profile",
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
	}

	stored, created, err := r.opts.Accounts.Upsert(ctx, u)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelError, "user.ensure",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("cause", "upsert"),
		)
		return "", err
	}
	logger.LogEvent(ctx, logger.SVCUsers, slog.LevelInfo, "user.ensure",
		slog.String("status", "ok"),
		slog.Bool("created", created),
	)
	if created && r.opts.RichMenuID != "" {
		r.schedule(ctx, "richmenu.link", func(ctx context.Context) error {
			return r.opts.Profiles.LinkRichMenu(ctx, lineUserID, r.opts.RichMenuID)
		})
	}
	return stored.ID, nil
}

func (r *Resolver) scheduleRefresh(ctx context.Context, id, lineUserID string) {
	r.schedule(ctx, "profile.refresh", func(ctx context.Context) error {
		p, err := r.opts.Profiles.Profile(ctx, lineUserID)
		if err != nil {
			return err
		}
		return r.opts.Accounts.UpdateProfile(ctx, id, nullable(p.DisplayName), nullable(p.PictureURL), r.now())
	})
}

func (r *Resolver) schedule(ctx context.Context, action string, run func(ctx context.Context) error) {
	if r.opts.Jobs == nil {
		return
	}
	if err := r.opts.Jobs.Enqueue(ctx, action, "user", run); err != nil {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelWarn, action,
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
	}
}

func nullable(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
