package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by namespace and result (hit, miss, expired, error).",
	}, []string{"namespace", "result"})

	computes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Subsystem: "cache",
		Name:      "computes_total",
		Help:      "Upstream computations run after a miss, by outcome (ok, error, stale).",
	}, []string{"namespace", "outcome"})

	invalidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docqa",
		Subsystem: "cache",
		Name:      "invalidated_entries_total",
		Help:      "Entries removed by tag invalidation.",
	}, []string{"namespace"})
)
