package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the fabric's Prometheus instruments. They are registered
// against the default registry exactly once per process, so
// cmd/server's /metrics endpoint exposes them alongside the rest of the
// process's metrics even when multiple Fabric instances are created
// (as in tests).
type metrics struct {
	subscribers *prometheus.GaugeVec
	published   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	sharedMetrics *metrics
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		m := &metrics{
			subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "braidcore_broadcast_subscribers",
				Help: "Current number of attached subscribers per resource.",
			}, []string{"resource"}),
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "braidcore_broadcast_published_total",
				Help: "Total updates published per resource.",
			}, []string{"resource"}),
		}
		prometheus.MustRegister(m.subscribers, m.published)
		sharedMetrics = m
	})
	return sharedMetrics
}
