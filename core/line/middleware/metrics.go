package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m3rciful/linephoto/core/line/router"
)

var (
	eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_events_handled_total",
		Help: "Message events handled, by kind and status.",
	}, []string{"kind", "status"})

	eventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "line_event_duration_seconds",
		Help:    "Time spent handling one message event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	repliesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "line_replies_sent_total",
		Help: "Messages sent back to users, reply or push.",
	})

	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "line_events_duplicate_total",
		Help: "Redelivered events dropped by dedupe.",
	})

	eventsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "line_events_rate_limited_total",
		Help: "Events dropped by the per-user rate limit.",
	})
)

// Metrics records per-event counters and latency.
func Metrics(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		start := time.Now()
		err := next(ctx, req)
		kind := string(req.Event.Kind)

		status := "ok"
		if err != nil {
			status = "fail"
		}
		eventsHandled.WithLabelValues(kind, status).Inc()
		eventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

		if replies, _, _, _ := router.CountersFrom(ctx).Snapshot(); replies > 0 {
			repliesSent.Add(float64(replies))
		}
		return err
	}
}
