package line

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/linephoto/core/config"
	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/middleware"
	"github.com/m3rciful/linephoto/core/line/router"
)

// DefaultMiddlewares builds the shared per-event middleware chain.
// rdb may be nil, which disables dedupe and rate limiting.
func DefaultMiddlewares(cfg *coreconfig.Config, rdb *redis.Client, onLimited router.HandlerFunc) []router.Middleware {
	mws := []router.Middleware{
		{Name: "recover", Use: middleware.Recover},
	}

	if cfg != nil && rdb != nil {
		mws = append(mws, router.Middleware{
			Name: "dedupe",
			Use: middleware.Dedupe(middleware.DedupeOptions{
				Client: rdb,
				TTL:    time.Duration(cfg.Redis.DedupeTTLSeconds) * time.Second,
			}),
		})

		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[events.Kind]struct{}, len(cfg.RateLimit.ExcludeKinds))
			for _, k := range cfg.RateLimit.ExcludeKinds {
				ex[events.Kind(strings.ToLower(k))] = struct{}{}
			}
			mws = append(mws, router.Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimit(middleware.RateLimitOptions{
					Client:    rdb,
					Interval:  interval,
					Exclude:   ex,
					OnLimited: onLimited,
				}),
			})
		}
	}

	mws = append(mws,
		router.Middleware{Name: "logger", Use: middleware.Logger},
		router.Middleware{Name: "metrics", Use: middleware.Metrics},
	)

	return mws
}
