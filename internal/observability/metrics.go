package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GenerationsTotal counts generation outcomes by final status.
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Total number of generation requests by outcome",
		},
		[]string{"status"},
	)

	// PaymentsReviewedTotal counts payment review decisions.
	PaymentsReviewedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_reviewed_total",
			Help: "Total number of payment reviews by decision",
		},
		[]string{"decision"},
	)

	// LedgerTransactionsTotal counts appended ledger entries by kind.
	LedgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total number of credit ledger transactions by kind",
		},
		[]string{"kind"},
	)

	// AITransformDuration observes external AI transform latency.
	AITransformDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_transform_duration_seconds",
			Help:    "Duration of external AI transform calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

// Register installs the metric collectors into the default registry. Call it
// once at startup.
func Register() {
	prometheus.MustRegister(GenerationsTotal, PaymentsReviewedTotal, LedgerTransactionsTotal, AITransformDuration)
}
