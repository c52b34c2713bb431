package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID        contextKey = "rid"
	ctxEventID    contextKey = "event_id"
	ctxLineUserID contextKey = "line_user_id"
	ctxAccountID  contextKey = "account_id"
	ctxSource     contextKey = "source"
	ctxLogger     contextKey = "logger"
	ctxHandler    contextKey = "handler"
	ctxTraceID    contextKey = "trace_id"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	return L
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withString(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxRID) }

// WithEventMeta attaches webhook event identifiers to context.
func WithEventMeta(ctx context.Context, eventID, lineUserID, source string) context.Context {
	ctx = withString(ctx, ctxEventID, eventID)
	ctx = withString(ctx, ctxLineUserID, lineUserID)
	return withString(ctx, ctxSource, source)
}

// EventIDFrom returns the webhook event id stored in context.
func EventIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxEventID) }

// LineUserIDFrom returns the LINE user id of the event sender.
func LineUserIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxLineUserID) }

// SourceFrom returns the event source type (user, group, room).
func SourceFrom(ctx context.Context) string { return stringFrom(ctx, ctxSource) }

// WithAccount stores the resolved internal account id.
func WithAccount(ctx context.Context, accountID string) context.Context {
	return withString(ctx, ctxAccountID, accountID)
}

// AccountIDFrom returns the internal account id if resolved.
func AccountIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxAccountID) }

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withString(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string { return stringFrom(ctx, ctxHandler) }

// WithTrace attaches a trace identifier to context.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return withString(ctx, ctxTraceID, traceID)
}

// TraceIDFrom extracts trace id from context.
func TraceIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxTraceID) }

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation identifier for a webhook event.
// LINE assigns a ULID webhookEventId; older payloads without one fall back to timestamp:index.
func BuildRID(eventID string, timestamp int64, index int) string {
	if id := strings.TrimSpace(eventID); id != "" {
		return id
	}
	return fmt.Sprintf("%d:%d", timestamp, index)
}

// CompactRID shortens an RID for readability.
// ULIDs keep their random tail; timestamp:index pairs are rendered in base36.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	if ts, idx, ok := strings.Cut(rid, ":"); ok {
		n, err1 := strconv.ParseInt(ts, 10, 64)
		i, err2 := strconv.Atoi(idx)
		if err1 != nil || err2 != nil {
			return rid
		}
		return strconv.FormatInt(n, 36) + "." + strconv.Itoa(i)
	}
	if len(rid) > 12 {
		return strings.ToLower(rid[len(rid)-10:])
	}
	return rid
}
