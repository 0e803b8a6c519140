// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(evaluationsTotal, evaluationLatency)
}

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_evaluations_total",
			Help: "Answer evaluations per provider and verdict (correct/wrong/unknown/failed).",
		},
		[]string{"provider", "verdict"},
	)

	evaluationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_evaluation_latency_ms",
			Help:    "Evaluator call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "success"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// ObserveEvaluation records one evaluator call. verdict is "correct", "wrong",
// "unknown" (no verdict line) or "failed".
func ObserveEvaluation(provider, verdict string, took time.Duration, success bool) {
	evaluationsTotal.WithLabelValues(norm(provider), norm(verdict)).Inc()
	evaluationLatency.WithLabelValues(norm(provider), strconv.FormatBool(success)).Observe(ms(took))
}
