// Package metrics holds the prometheus collectors for the messaging core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnlineUsers tracks the presence registry size.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duochat_online_users",
		Help: "Number of users with a live connection.",
	})

	// MessagesSent counts messages accepted and persisted by the dispatcher.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_messages_sent_total",
		Help: "Messages persisted by the dispatcher.",
	})

	// MessagesDelivered counts live pushes to recipient connections.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_messages_delivered_total",
		Help: "Messages pushed to a live recipient connection.",
	})

	// MessagesDeleted counts deletions by scope ("me" or "everyone").
	MessagesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duochat_messages_deleted_total",
		Help: "Message deletions by scope.",
	}, []string{"scope"})

	// DispatchSeconds observes end-to-end send handling latency.
	DispatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duochat_dispatch_seconds",
		Help:    "Latency of the persist-and-route send path.",
		Buckets: prometheus.DefBuckets,
	})

	// RetentionPurged counts message records removed by the retention sweeper.
	RetentionPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_retention_purged_total",
		Help: "Message records purged by the retention sweeper.",
	})
)
