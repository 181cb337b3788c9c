package taskqueue

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal  *prometheus.CounterVec
	dispatchTotal *prometheus.CounterVec
	deadTotal     *prometheus.CounterVec
	cleanedTotal  *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	pending     *prometheus.GaugeVec
	locked      *prometheus.GaugeVec
	relayLeader *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskqueue",
			Name:      "enqueue_total",
			Help:      "Total number of enqueue attempts by result.",
		}, []string{"backend", "topic", "result"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskqueue",
			Name:      "dispatch_total",
			Help:      "Total number of task executions by result.",
		}, []string{"backend", "topic", "result"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskqueue",
			Name:      "dead_total",
			Help:      "Total number of tasks that failed terminally.",
		}, []string{"backend", "topic"}),
		cleanedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskqueue",
			Name:      "cleaned_total",
			Help:      "Rows removed by the cleaner, by table and row state.",
		}, []string{"table", "state"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskqueue",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for task execution.",
			Buckets: []float64{
				0.005, 0.01, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5,
				10, 30, 60,
			},
		}, []string{"backend", "topic", "result"}),
		pending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskqueue",
			Name:      "pending",
			Help:      "Current number of tasks waiting for execution.",
		}, []string{"backend"}),
		locked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskqueue",
			Name:      "locked",
			Help:      "Current number of claimed, unfinished tasks.",
		}, []string{"backend"}),
		relayLeader: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskqueue",
			Name:      "relay_leader",
			Help:      "Whether current instance holds the relay leader lock (1/0).",
		}, []string{"backend"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func (m *metrics) recordDispatch(backend, topic, result string, latency time.Duration) {
	m.dispatchTotal.WithLabelValues(backend, topic, result).Inc()
	m.dispatchLatency.WithLabelValues(backend, topic, result).Observe(latency.Seconds())
}
