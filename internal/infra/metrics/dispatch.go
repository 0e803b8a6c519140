package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(stageTransitionsTotal, handlerErrorsTotal, staleCallbacksTotal, sessionWaitSeconds)
}

var (
	stageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_transitions_total",
			Help: "Session stage transitions (from -> to).",
		},
		[]string{"from", "to"},
	)

	handlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_handler_errors_total",
			Help: "Handler failures caught by the dispatcher (error|panic).",
		},
		[]string{"kind"},
	)

	staleCallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_stale_callbacks_total",
			Help: "Callback presses from an older exercise round.",
		},
	)

	sessionWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_acquire_seconds",
			Help:    "Time spent waiting for exclusive access to a chat session.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 9),
		},
		[]string{"backend"},
	)
)

func IncTransition(from, to string) {
	stageTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncHandlerError(kind string) { handlerErrorsTotal.WithLabelValues(norm(kind)).Inc() }

func IncStaleCallback() { staleCallbacksTotal.Inc() }

func ObserveSessionWait(backend string, d time.Duration) {
	sessionWaitSeconds.WithLabelValues(norm(backend)).Observe(d.Seconds())
}
