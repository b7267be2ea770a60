package activitypub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboxActivities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangafedi",
		Subsystem: "inbox",
		Name:      "activities_total",
		Help:      "Inbound activities by type and outcome.",
	}, []string{"type", "outcome"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangafedi",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Outbound delivery attempts by outcome.",
	}, []string{"outcome"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mangafedi",
		Subsystem: "delivery",
		Name:      "duration_seconds",
		Help:      "Time spent on a single outbound delivery.",
		Buckets:   prometheus.DefBuckets,
	})
)

const (
	outcomeProcessed = "processed"
	outcomeBlocked   = "blocked"
	outcomeIgnored   = "ignored"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"

	outcomeDelivered = "delivered"
	outcomeDeferred  = "deferred"
	outcomeDropped   = "dropped"
	outcomeRejected  = "rejected"
	outcomeLocal     = "local_error"
)

func countInbox(kind, outcome string) {
	inboxActivities.WithLabelValues(kind, outcome).Inc()
}
