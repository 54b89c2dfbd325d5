package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "libzdb_pool_size",
		Help: "Total connections currently held by the pool, available and in-use.",
	}, []string{"url"})

	poolActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "libzdb_pool_active",
		Help: "Connections currently checked out of the pool.",
	}, []string{"url"})

	acquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libzdb_acquire_total",
		Help: "Connection acquisition attempts by outcome.",
	}, []string{"url", "outcome"})

	acquireDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libzdb_acquire_duration_seconds",
		Help:    "Time spent in GetConnection, including ping retries.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"url"})

	reaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libzdb_reaped_total",
		Help: "Connections removed by the reaper, idle-timeout or failed-ping.",
	}, []string{"url"})
)

// reportGauges publishes the current size/active snapshot. Called with
// p.mu held by the caller.
func (p *ConnectionPool) reportGauges() {
	label := p.url.String()
	poolSize.WithLabelValues(label).Set(float64(len(p.conns)))
	poolActive.WithLabelValues(label).Set(float64(p.active()))
}
