// Package metrics holds the bot's domain collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts state machine steps by starting phase and effect.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobot_session_transitions_total",
		Help: "Conversation steps by starting phase and requested effect.",
	}, []string{"phase", "effect"})

	// Outcomes counts handled events by their reported outcome.
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobot_event_outcomes_total",
		Help: "Handled message events by outcome.",
	}, []string{"outcome"})

	PostsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobot_posts_completed_total",
		Help: "Posts saved from completed sessions.",
	})

	SessionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobot_sessions_cancelled_total",
		Help: "Sessions cancelled by the user.",
	})

	// UploadDuration observes fetch plus upload time of one image.
	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photobot_image_upload_seconds",
		Help:    "Time to fetch an image from LINE and store it.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"status"})

	ReplyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobot_reply_fallbacks_total",
		Help: "Replies re-sent as push messages after the reply call failed.",
	}, []string{"status"})
)
