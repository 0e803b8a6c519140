package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(dedupEntries, dedupEvictionsTotal, dedupSweptTotal, storeErrorsTotal)
}

var (
	dedupEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dedup_entries",
			Help: "Update ids currently remembered by the in-process dedup store.",
		},
		[]string{"backend"},
	)

	dedupEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_evictions_total",
			Help: "Dedup entries dropped before expiry because the size cap was reached.",
		},
		[]string{"backend"},
	)

	dedupSweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_swept_total",
			Help: "Expired dedup entries removed by the sweeper.",
		},
		[]string{"backend"},
	)

	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Backing store failures by backend and operation.",
		},
		[]string{"backend", "op"},
	)
)

func SetDedupEntries(backend string, n int) {
	dedupEntries.WithLabelValues(norm(backend)).Set(float64(n))
}

func IncDedupEvicted(backend string, n int) {
	dedupEvictionsTotal.WithLabelValues(norm(backend)).Add(float64(n))
}

func IncDedupSwept(backend string, n int) {
	dedupSweptTotal.WithLabelValues(norm(backend)).Add(float64(n))
}

func IncStoreError(backend, op string) {
	storeErrorsTotal.WithLabelValues(norm(backend), norm(op)).Inc()
}
