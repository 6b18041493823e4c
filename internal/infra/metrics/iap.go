package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	purchasesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iap_purchases_processed_total",
			Help: "Reconciliations by result (applied/already_applied/already_applied_other/failed).",
		},
		[]string{"result"},
	)

	actionsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iap_actions_published_total",
			Help: "Actions published on the bus by type.",
		},
		[]string{"type"},
	)

	reconcileLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iap_reconcile_latency_ms",
			Help:    "Reconciliation round-trip latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"success"},
	)

	storeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iap_store_calls_total",
			Help: "Native store operations by op and outcome.",
		},
		[]string{"op", "success"},
	)
)

func init() {
	register(purchasesProcessed, actionsPublished, reconcileLatencyMs, storeCalls)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncPurchaseProcessed(result string) {
	purchasesProcessed.WithLabelValues(norm(result)).Inc()
}

func IncActionPublished(actionType string) {
	actionsPublished.WithLabelValues(norm(actionType)).Inc()
}

func ObserveReconcileLatency(latencyMs int, success bool) {
	reconcileLatencyMs.WithLabelValues(strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncStoreCall(op string, success bool) {
	storeCalls.WithLabelValues(norm(op), strconv.FormatBool(success)).Inc()
}
