package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinepay",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by event type and final state.",
	}, []string{"event_type", "state"})

	webhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinepay",
		Name:      "webhook_processing_seconds",
		Help:      "Time spent verifying, dispatching and logging a delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinepay",
		Name:      "gateway_requests_total",
		Help:      "Calls to the payment processor by operation and result.",
	}, []string{"operation", "result"})
)

// ObserveDelivery records one processed webhook delivery
func ObserveDelivery(eventType, state string, elapsed time.Duration) {
	if eventType == "" {
		eventType = "unparsed"
	}
	webhookDeliveries.WithLabelValues(eventType, state).Inc()
	webhookDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// ObserveGatewayCall records one processor call; result is "ok" or an error class
func ObserveGatewayCall(operation, result string) {
	gatewayCalls.WithLabelValues(operation, result).Inc()
}
