package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	savesTotal      prometheus.Counter
	conflictsTotal  prometheus.Counter
	exhaustedTotal  prometheus.Counter
	registerMetrics sync.Once
)

// RegisterMetrics initializes the store counters on the default registry.
// Safe to skip in tests; the increment helpers tolerate a nil counter.
func RegisterMetrics() {
	registerMetrics.Do(func() {
		savesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "awards",
			Name:      "store_saves_total",
			Help:      "Successful document saves.",
		})
		conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "awards",
			Name:      "store_conflicts_total",
			Help:      "Version conflicts encountered while saving.",
		})
		exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "awards",
			Name:      "store_retries_exhausted_total",
			Help:      "Saves abandoned after exhausting conflict retries.",
		})
	})
}

func incSave() {
	if savesTotal != nil {
		savesTotal.Inc()
	}
}

func incConflict() {
	if conflictsTotal != nil {
		conflictsTotal.Inc()
	}
}

func incExhausted() {
	if exhaustedTotal != nil {
		exhaustedTotal.Inc()
	}
}
