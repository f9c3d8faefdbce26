package engine

import "time"

// Strategy is a consumer-specific caching policy. The three named consumers
// differ only in these knobs, not in code path.
type Strategy struct {
	Name        string
	TTL         time.Duration
	BatchSize   int
	Suggestions bool
}

const (
	StrategyDashboard = "dashboard"
	StrategyProject   = "project"
	StrategyTimeline  = "timeline"
)

// DefaultStrategies returns the built-in policies:
// dashboard — wide scope, large batches, long staleness tolerance, no suggestions;
// project — narrow scope, short staleness, no suggestions;
// timeline — movable range, suggestions on, minimal caching.
func DefaultStrategies() map[string]Strategy {
	return map[string]Strategy{
		StrategyDashboard: {Name: StrategyDashboard, TTL: 5 * time.Minute, BatchSize: 200, Suggestions: false},
		StrategyProject:   {Name: StrategyProject, TTL: 30 * time.Second, BatchSize: 50, Suggestions: false},
		StrategyTimeline:  {Name: StrategyTimeline, TTL: 5 * time.Second, BatchSize: 100, Suggestions: true},
	}
}
