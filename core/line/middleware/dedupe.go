package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/logger"
)

// DedupeOptions configures redelivery suppression.
type DedupeOptions struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

// Dedupe drops events whose webhook event id was already seen within TTL.
// Events without an id pass through; Redis errors fail open.
func Dedupe(opts DedupeOptions) func(router.HandlerFunc) router.HandlerFunc {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Prefix == "" {
		opts.Prefix = "line:evt:"
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			if opts.Client == nil || req.Event.ID == "" {
				return next(ctx, req)
			}
			fresh, err := opts.Client.SetNX(ctx, opts.Prefix+req.Event.ID, 1, opts.TTL).Result()
			if err != nil {
				logger.LogEvent(ctx, nil, slog.LevelWarn, "event.dedupe",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
					slog.String("cause", "redis"),
				)
				return next(ctx, req)
			}
			if !fresh {
				eventsDuplicate.Inc()
				logger.LogEvent(ctx, nil, slog.LevelInfo, "event.dedupe",
					slog.String("status", "duplicate"),
					slog.Bool("redelivery", req.Event.Redelivery),
				)
				return nil
			}
			return next(ctx, req)
		}
	}
}
