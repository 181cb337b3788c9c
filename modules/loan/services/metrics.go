package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type importMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	uploads  *prometheus.CounterVec
}

var getMetrics = sync.OnceValue(func() *importMetrics {
	return &importMetrics{
		total: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loan",
			Name:      "import_total",
			Help:      "XML imports by result.",
		}, []string{"result"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loan",
			Name:      "import_duration_seconds",
			Help:      "Time spent importing one XML document.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loan",
			Name:      "upload_jobs_total",
			Help:      "Upload job transitions (submitted, dispatch_failed, processed, error).",
		}, []string{"status"}),
	}
})
