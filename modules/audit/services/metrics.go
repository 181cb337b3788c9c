package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsTotal = sync.OnceValue(func() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audit",
		Name:      "events_total",
		Help:      "Audit recordings by operation and result (written, skipped, failed).",
	}, []string{"operation", "result"})
})
