// Package bot – Prometheus instrumentation
//
// Conversation-level collectors. Label cardinality is bounded: "state" and
// "action" both come from small fixed enums.
package bot

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsTotal counts processed events by the state they arrived in and
	// the decoded action.
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of inbound chat events processed.",
		},
		[]string{"state", "action"},
	)

	// transitionErrors counts transitions answered with the error screen.
	transitionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_transition_errors_total",
			Help: "Total number of failed conversation transitions.",
		},
	)

	// ordersPlaced counts successful checkouts.
	ordersPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_orders_placed_total",
			Help: "Total number of orders submitted to the backend.",
		},
	)

	// activeChats gauges the number of per-chat dispatcher workers alive.
	activeChats = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_active_chats",
			Help: "Number of chat identities with a live dispatcher worker.",
		},
	)

	// droppedEvents counts events discarded because a chat's queue was full.
	droppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_dropped_events_total",
			Help: "Total number of events dropped due to a full chat queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, transitionErrors, ordersPlaced, activeChats, droppedEvents)
}
