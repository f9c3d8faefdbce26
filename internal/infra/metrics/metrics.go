package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine exports the conflict engine's cache and query activity. It implements
// engine.Metrics.
type Engine struct {
	queries     *prometheus.HistogramVec
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	staleServed *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	conflicts   prometheus.Gauge
}

func NewEngine(reg prometheus.Registerer) *Engine {
	factory := promauto.With(reg)
	return &Engine{
		queries: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stockengine",
			Name:      "query_duration_seconds",
			Help:      "Engine query latency by strategy and freshness.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy", "stale"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockengine",
			Name:      "cache_hits_total",
			Help:      "Queries answered from a fresh snapshot.",
		}, []string{"strategy"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockengine",
			Name:      "cache_misses_total",
			Help:      "Queries that needed a ledger refresh.",
		}, []string{"strategy"}),
		staleServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockengine",
			Name:      "stale_served_total",
			Help:      "Queries degraded to a stale snapshot after a fetch failure.",
		}, []string{"strategy"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockengine",
			Name:      "ledger_fetches_total",
			Help:      "Ledger fetch rounds issued to the data source.",
		}, []string{"strategy"}),
		conflicts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stockengine",
			Name:      "conflicts_last_run",
			Help:      "Conflicts found by the most recent pipeline run.",
		}),
	}
}

func (e *Engine) QueryServed(strategy string, stale bool, d time.Duration) {
	label := "false"
	if stale {
		label = "true"
	}
	e.queries.WithLabelValues(strategy, label).Observe(d.Seconds())
}

func (e *Engine) CacheHit(strategy string)       { e.cacheHits.WithLabelValues(strategy).Inc() }
func (e *Engine) CacheMiss(strategy string)      { e.cacheMisses.WithLabelValues(strategy).Inc() }
func (e *Engine) StaleServed(strategy string)    { e.staleServed.WithLabelValues(strategy).Inc() }
func (e *Engine) FetchPerformed(strategy string) { e.fetches.WithLabelValues(strategy).Inc() }
func (e *Engine) ConflictsFound(n int)           { e.conflicts.Set(float64(n)) }
