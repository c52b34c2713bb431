package logger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// errAttrLimit bounds the err attribute; LINE API errors echo whole payloads.
const errAttrLimit = 256

// Status maps a handler error to a schema status. A cancelled or timed out
// context is reported as "cancelled" so shutdown noise is not counted as failure.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "fail"
	}
}

// ErrAttr renders err as a sanitized, length-capped "err" attribute.
func ErrAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", SanitizeLimit(err.Error(), errAttrLimit))
}

// Took is RoundMS(time.Since(start)).
func Took(start time.Time) time.Duration { return RoundMS(time.Since(start)) }

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values with ", " and reports whether
// some were left out. Migration logs use it for applied file names.
func SummarizeStrings(values []string, limit int) (string, bool) {
	n := min(max(limit, 0), len(values))
	return strings.Join(values[:n], ", "), n < len(values)
}
