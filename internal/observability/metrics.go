package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "travel_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_holds_created_total",
			Help: "Reservation holds created or extended",
		},
		[]string{"kind", "outcome"},
	)

	HoldConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_hold_conflicts_total",
			Help: "Claims rejected or reservations canceled because a unit was held by someone else",
		},
		[]string{"kind", "stage"},
	)

	HoldsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_holds_expired_total",
			Help: "Holds released after their guarantee window elapsed",
		},
		[]string{"source"},
	)

	ClaimRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "travel_claim_retries_total",
			Help: "Claim transactions retried after a serialization failure",
		},
	)

	PaymentIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travel_payment_intents_total",
			Help: "Payment intent requests by outcome",
		},
		[]string{"kind", "outcome"},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "travel_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "travel_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "travel_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

// InitMetrics registers the collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			DBTxDuration,
			HoldsCreated,
			HoldConflicts,
			HoldsExpired,
			ClaimRetries,
			PaymentIntents,
			OutboxLag,
			RabbitPublishRetries,
			RateLimitExceeded,
		)
	})
}
