package engine

import "time"

// Metrics receives engine activity. The prometheus implementation lives in
// internal/infra/metrics; tests and tools use NopMetrics.
type Metrics interface {
	QueryServed(strategy string, stale bool, d time.Duration)
	CacheHit(strategy string)
	CacheMiss(strategy string)
	StaleServed(strategy string)
	FetchPerformed(strategy string)
	ConflictsFound(n int)
}

type NopMetrics struct{}

func (NopMetrics) QueryServed(string, bool, time.Duration) {}
func (NopMetrics) CacheHit(string)                         {}
func (NopMetrics) CacheMiss(string)                        {}
func (NopMetrics) StaleServed(string)                      {}
func (NopMetrics) FetchPerformed(string)                   {}
func (NopMetrics) ConflictsFound(int)                      {}
