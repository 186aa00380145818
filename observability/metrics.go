package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "hold_operations_total",
			Help:      "Seat hold operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "session_transitions_total",
			Help:      "Conversation steps entered.",
		},
		[]string{"step"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reservations",
			Name:      "active_sessions",
			Help:      "Sessions currently open.",
		},
	)

	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "outbound_messages_total",
			Help:      "Messages handed to the chat transport.",
		},
		[]string{"outcome"},
	)

	MessageHandlingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reservations",
			Name:      "message_handling_seconds",
			Help:      "Time spent in message router handlers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler", "outcome"},
	)
)

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
