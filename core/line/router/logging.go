package router

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/linephoto/core/logger"
)

type countersKey struct{}

// Counters tracks what a handler sent back for the summary line.
type Counters struct {
	replies    atomic.Int32
	quickReply atomic.Bool
	fallback   atomic.Bool
	outcome    atomic.Value
}

func withCounters(ctx context.Context) context.Context {
	return context.WithValue(ctx, countersKey{}, &Counters{})
}

// CountersFrom returns the counters of the current event, or nil outside a dispatch.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(countersKey{}).(*Counters)
	return c
}

// RecordReply notes n messages sent for the current event.
func RecordReply(ctx context.Context, n int, quickReply, fallback bool) {
	c := CountersFrom(ctx)
	if c == nil {
		return
	}
	c.replies.Add(int32(n))
	if quickReply {
		c.quickReply.Store(true)
	}
	if fallback {
		c.fallback.Store(true)
	}
}

// RecordOutcome sets the outcome reported on the summary line.
func RecordOutcome(ctx context.Context, outcome string) {
	if c := CountersFrom(ctx); c != nil && outcome != "" {
		c.outcome.Store(outcome)
	}
}

// Snapshot returns replies, quick reply use, push fallback use and the recorded outcome.
func (c *Counters) Snapshot() (int, bool, bool, string) {
	if c == nil {
		return 0, false, false, ""
	}
	outcome, _ := c.outcome.Load().(string)
	return int(c.replies.Load()), c.quickReply.Load(), c.fallback.Load(), outcome
}

func handleWithSummary(ctx context.Context, handlerName string, start time.Time, fn func(ctx context.Context) error, extras ...slog.Attr) error {
	ctx = logger.WithHandler(ctx, handlerName)
	err := fn(ctx)
	logHandlerSummary(ctx, handlerName, start, "", "", err, extras...)
	return err
}

func logHandlerSummary(ctx context.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx = logger.WithHandler(ctx, handlerName)
	replies, quick, fallback, recorded := CountersFrom(ctx).Snapshot()

	status := statusOverride
	if status == "" {
		status = logger.Status(err)
	}
	outcome := outcomeOverride
	if outcome == "" {
		switch {
		case err != nil:
			outcome = "fail"
		case recorded != "":
			outcome = recorded
		default:
			outcome = "ok"
		}
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("replies", replies),
		slog.Bool("quick_reply", quick),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if fallback {
		attrs = append(attrs, slog.Bool("fallback", true))
	}
	if err != nil {
		attrs = append(attrs,
			logger.ErrAttr(err),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, nil, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
