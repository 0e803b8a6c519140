package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(outboundSendsTotal, outboundFailedTotal, outboundPending, outboundSendLatency, outboundRetryDelay)
}

var (
	outboundSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_sends_total",
			Help: "Delivery attempts by action kind and result (ok|transient|permanent).",
		},
		[]string{"kind", "result"},
	)

	outboundFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_failed_total",
			Help: "Actions handed to the failure sink, by reason.",
		},
		[]string{"reason"},
	)

	outboundPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbound_pending",
			Help: "Actions waiting in the outbound queue.",
		},
	)

	outboundSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbound_send_latency_ms",
			Help:    "Latency of a single chat API call.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		},
	)

	outboundRetryDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbound_retry_delay_seconds",
			Help:    "Backoff delays scheduled before a retry.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)

func IncOutboundSend(kind, result string) {
	outboundSendsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func IncOutboundFailed(reason string) { outboundFailedTotal.WithLabelValues(norm(reason)).Inc() }

func AddOutboundPending(delta int) { outboundPending.Add(float64(delta)) }

func ObserveOutboundSend(d time.Duration) { outboundSendLatency.Observe(ms(d)) }

func ObserveRetryDelay(d time.Duration) { outboundRetryDelay.Observe(d.Seconds()) }
