package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_conversations_started_total",
		Help: "Conversations started, labeled by initial mode.",
	}, []string{"mode"})

	turnsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_turns_total",
		Help: "Conversation turns processed, labeled by response type.",
	}, []string{"type"})

	turnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_turn_failures_total",
		Help: "Turns that failed with a server-side error.",
	})
)
