package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/logger"
)

// Logger writes one sampled receipt line per message event.
func Logger(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if logger.ShouldSampleDebug() {
			ev := req.Event
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", string(ev.Kind)),
			}
			if ev.Redelivery {
				attrs = append(attrs, slog.Bool("redelivery", true))
			}
			switch ev.Kind {
			case events.KindText:
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Text, 256)))
			case events.KindImage:
				attrs = append(attrs, slog.String("object", ev.MessageID))
			case events.KindLocation:
				if ev.Location != nil {
					attrs = append(attrs,
						slog.Float64("lat", ev.Location.Latitude),
						slog.Float64("lon", ev.Location.Longitude),
					)
				}
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "event.received", attrs...)
		}
		return next(ctx, req)
	}
}
