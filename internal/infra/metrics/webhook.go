package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookRequestsTotal,
		updatesDecodedTotal,
		updatesDuplicateTotal,
		updatesFloodLimitedTotal,
		processingLatency,
	)
}

var (
	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook requests by HTTP status code.",
		},
		[]string{"code"},
	)

	updatesDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updates_decoded_total",
			Help: "Decoded updates by kind, or by decode failure reason.",
		},
		[]string{"result"},
	)

	updatesDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updates_duplicate_total",
			Help: "Updates dropped because their id was already seen.",
		},
	)

	updatesFloodLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updates_flood_limited_total",
			Help: "Updates dropped by per-chat inbound flood control.",
		},
	)

	processingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "update_processing_latency_ms",
			Help:    "End-to-end processing time of one inbound update.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"outcome"},
	)
)

func IncWebhookRequest(code string) {
	webhookRequestsTotal.WithLabelValues(code).Inc()
}

func IncDecoded(result string) {
	updatesDecodedTotal.WithLabelValues(norm(result)).Inc()
}

func IncDuplicate() {
	updatesDuplicateTotal.Inc()
}

func IncFloodLimited() {
	updatesFloodLimitedTotal.Inc()
}

func ObserveProcessing(outcome string, millis float64) {
	processingLatency.WithLabelValues(norm(outcome)).Observe(millis)
}
