package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/logger"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Client    *redis.Client
	Interval  time.Duration
	Exclude   map[events.Kind]struct{}
	OnLimited router.HandlerFunc
}

// RateLimit enforces a minimum interval between events of the same user.
// A nil client or a Redis error lets the event through.
func RateLimit(opts RateLimitOptions) func(router.HandlerFunc) router.HandlerFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			if opts.Client == nil || opts.Interval <= 0 || req.Event.UserID == "" {
				return next(ctx, req)
			}
			if _, skip := opts.Exclude[req.Event.Kind]; skip {
				return next(ctx, req)
			}

			allowed, err := allow(ctx, opts.Client, req.Event.UserID, opts.Interval)
			if err != nil {
				logger.LogEvent(ctx, nil, slog.LevelWarn, "line.rate_limit",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
					slog.String("cause", "redis"),
				)
				return next(ctx, req)
			}
			if allowed {
				return next(ctx, req)
			}

			eventsRateLimited.Inc()
			router.RecordOutcome(ctx, "rate_limited")
			logger.LogEvent(ctx, nil, slog.LevelWarn, "line.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", string(req.Event.Kind)),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(ctx, req)
			}
			return nil
		}
	}
}

// allow claims the per-user slot with SET NX PX so the key always carries its TTL.
func allow(ctx context.Context, rdb *redis.Client, userID string, interval time.Duration) (bool, error) {
	ok, err := rdb.SetNX(ctx, rateLimitKey(userID), 1, interval).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

func rateLimitKey(userID string) string {
	return "rl:line:" + userID
}
