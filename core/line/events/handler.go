package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/m3rciful/linephoto/core/logger"
)

// Sink consumes the events of one delivery. It must return only after every
// event has been handled; the webhook answers once it returns.
type Sink func(ctx context.Context, evs []Event)

// Handler serves the webhook endpoint: POST only, signature checked against
// channelSecret, "ok" once sink has returned.
func Handler(channelSecret string, sink Sink) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Status(fiber.StatusMethodNotAllowed).SendString("Method not allowed")
		}

		start := time.Now()
		ctx := logger.WithTrace(c.UserContext(), traceID(c))
		evs, err := Parse(channelSecret, c.Get("X-Line-Signature"), c.Body())
		if err != nil {
			code := "BAD_PAYLOAD"
			if errors.Is(err, ErrInvalidSignature) {
				code = "BAD_SIGNATURE"
			}
			logger.HTTP.WarnContext(ctx, "webhook rejected",
				slog.String("event", "webhook.rejected"),
				slog.String("status", "fail"),
				slog.Int("http_code", fiber.StatusBadRequest),
				logger.ErrAttr(err),
				slog.String("err_code", code),
			)
			return c.Status(fiber.StatusBadRequest).SendString("Bad Request")
		}

		if sink != nil && len(evs) > 0 {
			sink(ctx, evs)
		}

		if logger.ShouldSampleDebug() {
			logger.HTTP.DebugContext(ctx, "webhook handled",
				slog.String("event", "webhook.handled"),
				slog.String("status", "ok"),
				slog.Int("count", len(evs)),
				slog.Duration("duration", logger.Took(start)),
			)
		}
		return c.SendString("ok")
	}
}

// traceID prefers the id set by the requestid middleware, then the raw header.
func traceID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
