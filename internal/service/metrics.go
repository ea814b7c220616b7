package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkout outcomes used as the "outcome" label.
const (
	outcomeCommitted = "committed"
	outcomeRejected  = "rejected"
	outcomeRace      = "race"
	outcomeError     = "error"
	outcomeReplayed  = "replayed"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_checkouts_total",
		Help: "Checkouts by outcome.",
	}, []string{"outcome"})

	checkoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_checkout_duration_seconds",
		Help:    "Checkout latency including the transaction.",
		Buckets: prometheus.DefBuckets,
	})

	unitsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_units_consumed_total",
		Help: "Units taken from batches by movement kind.",
	}, []string{"kind"})

	unitsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_units_received_total",
		Help: "Units added as new batches by movement kind.",
	}, []string{"kind"})
)
