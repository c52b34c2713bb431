package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/logger"
)

// Recover catches panics in handlers so one event cannot take the process down.
func Recover(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogEvent(ctx, nil, slog.LevelError, "line.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("err_code", "PANIC"),
					slog.String("cause", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, req)
	}
}
