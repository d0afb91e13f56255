// Package metrics holds the domain counters exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueJoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rando_queue_joins_total",
			Help: "Queue joins by mood.",
		},
		[]string{"mood"},
	)

	Matches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rando_matches_total",
			Help: "Sessions created by the pairing engine, by mood.",
		},
		[]string{"mood"},
	)

	// ClaimConflicts counts claims lost to a concurrent claimer. They are
	// retried and never reach clients.
	ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rando_claim_conflicts_total",
		Help: "Pairing claims that lost a race and were retried.",
	})

	SearchTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rando_search_timeouts_total",
		Help: "Searches that ended without a partner.",
	})

	QueueSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rando_queue_swept_total",
		Help: "Queue entries removed by the TTL sweep.",
	})

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rando_sessions_ended_total",
			Help: "Sessions ended, by reason.",
		},
		[]string{"reason"},
	)

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rando_messages_sent_total",
		Help: "Chat messages accepted.",
	})

	ReportsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rando_reports_submitted_total",
			Help: "Reports submitted, by category.",
		},
		[]string{"category"},
	)

	FriendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rando_friend_requests_total",
			Help: "Friend graph operations, by outcome.",
		},
		[]string{"outcome"},
	)

	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rando_ws_clients",
		Help: "Currently connected websocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		QueueJoins, Matches, ClaimConflicts, SearchTimeouts, QueueSwept,
		SessionsEnded, MessagesSent, ReportsSubmitted, FriendRequests, ConnectedClients,
	)
}
