package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("engine closed")

// Engine is the façade over the ledger reader, effective-stock calculator,
// conflict analyzer and suggestion generator. It is the only component holding
// mutable state: one cache entry per (strategy, scope), refreshed through a
// singleflight group so identical in-flight requests share a single fetch.
type Engine struct {
	ledger     *Ledger
	gen        *SuggestionGenerator
	strategies map[string]Strategy
	metrics    Metrics
	log        *slog.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	closed  bool

	sf singleflight.Group
}

func NewEngine(ledger *Ledger, gen *SuggestionGenerator, strategies map[string]Strategy, m Metrics, log *slog.Logger) *Engine {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	if m == nil {
		m = NopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		ledger:     ledger,
		gen:        gen,
		strategies: strategies,
		metrics:    m,
		log:        log,
		entries:    make(map[string]*cacheEntry),
	}
}

// Query computes (or serves from cache) the conflict picture for a scope and
// date range under the named strategy. Validation errors abort immediately;
// fetch failures degrade to the last fresh snapshot when it covers the range.
func (e *Engine) Query(ctx context.Context, scope Scope, r DateRange, strategyName string) (*Result, error) {
	start := time.Now()
	if !r.Valid() {
		return nil, validationf("invalid date range %s..%s", r.From, r.To)
	}
	if !scope.All && len(scope.IDs) == 0 {
		return nil, validationf("empty equipment scope")
	}
	strat, ok := e.strategies[strategyName]
	if !ok {
		return nil, validationf("unknown cache strategy %q", strategyName)
	}

	key := strat.Name + "|" + scope.key()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	var served *Result
	if entry := e.entries[key]; entry != nil && entry.freshFor(strat.TTL, start) && entry.r.Covers(r) {
		served = entry.snap.slice(r, false)
	}
	e.mu.RUnlock()

	if served != nil {
		e.metrics.CacheHit(strat.Name)
		e.metrics.QueryServed(strat.Name, false, time.Since(start))
		return served, nil
	}
	e.metrics.CacheMiss(strat.Name)

	sig := key + "|" + string(r.From) + ".." + string(r.To)
	v, err, _ := e.sf.Do(sig, func() (any, error) {
		return e.refresh(ctx, key, scope, r, strat)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	if res.Stale {
		e.metrics.StaleServed(strat.Name)
	}
	e.metrics.QueryServed(strat.Name, res.Stale, time.Since(start))
	return res, nil
}

// refresh brings the cache entry for key up to date with the requested range.
// When the entry is still fresh and merely too narrow, only the uncovered days
// are fetched and merged; otherwise the requested range is fetched whole.
func (e *Engine) refresh(ctx context.Context, key string, scope Scope, r DateRange, strat Strategy) (*Result, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	entry := e.entries[key]
	if entry == nil {
		entry = &cacheEntry{scope: scope, state: cacheEmpty}
		e.entries[key] = entry
	}
	now := time.Now()
	if entry.freshFor(strat.TTL, now) && entry.r.Covers(r) {
		// a coalesced waiter arrived after another caller already refreshed
		res := entry.snap.slice(r, false)
		e.mu.Unlock()
		return res, nil
	}

	target := r
	toFetch := []DateRange{r}
	base := LedgerData{}
	var prevFetched time.Time
	if entry.freshFor(strat.TTL, now) && overlapsOrAdjacent(entry.r, r) {
		target = union(entry.r, r)
		toFetch = uncovered(entry.r, r)
		base = entry.data
		prevFetched = entry.fetchedAt
	}
	entry.state = cacheLoading
	entry.gen++
	gen := entry.gen
	e.mu.Unlock()

	data, fetchErr := e.fetchAll(ctx, scope, toFetch, strat, base)
	if fetchErr != nil {
		e.mu.Lock()
		entry.state = cacheError
		var stale *Result
		if entry.snap != nil && entry.r.Covers(r) {
			stale = entry.snap.slice(r, true)
		}
		e.mu.Unlock()
		if stale != nil {
			e.log.Warn("serving stale snapshot after fetch failure", "key", key, "err", fetchErr)
			return stale, nil
		}
		return nil, fetchErr
	}

	// an extended snapshot keeps the older fetch time so reused days
	// never outlive their own TTL
	fetchedAt := time.Now()
	if !prevFetched.IsZero() && prevFetched.Before(fetchedAt) {
		fetchedAt = prevFetched
	}
	res, err := e.compute(ctx, scope, target, strat, data, fetchedAt)
	if err != nil {
		e.mu.Lock()
		entry.state = cacheStale
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if entry.gen == gen {
		entry.scope = scope
		entry.r = target
		entry.data = data
		entry.snap = res
		entry.fetchedAt = res.FetchedAt
		entry.state = cacheFresh
	}
	// a superseded generation still answers its caller, it just is not cached
	e.mu.Unlock()
	return res.slice(r, false), nil
}

// fetchAll runs the ledger fetch for each missing range and merges the results
// with the reused cached data, deduplicating facts that span a fetch boundary.
func (e *Engine) fetchAll(ctx context.Context, scope Scope, ranges []DateRange, strat Strategy, base LedgerData) (LedgerData, error) {
	out := LedgerData{
		Facts:    append([]StockFact(nil), base.Facts...),
		Bookings: append([]Booking(nil), base.Bookings...),
	}
	seen := make(map[StockFact]struct{}, len(out.Facts))
	for _, f := range out.Facts {
		seen[f] = struct{}{}
	}
	for _, fr := range ranges {
		part, err := e.ledger.Fetch(ctx, scope, fr, strat.BatchSize)
		if err != nil {
			return LedgerData{}, err
		}
		e.metrics.FetchPerformed(strat.Name)
		for _, f := range part.Facts {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out.Facts = append(out.Facts, f)
		}
		out.Bookings = append(out.Bookings, part.Bookings...)
	}
	return out, nil
}

// compute runs the pure pipeline over one ledger snapshot.
func (e *Engine) compute(ctx context.Context, scope Scope, r DateRange, strat Strategy, data LedgerData, fetchedAt time.Time) (*Result, error) {
	ids := scope.IDs
	if scope.All {
		ids = collectIDs(data)
	}

	stock, diags := ComputeEffectiveStock(data.Facts, ids, r)
	conflicts, err := AnalyzeConflicts(stock, data.Bookings)
	if err != nil {
		return nil, err
	}

	var suggestions []SubrentalSuggestion
	if strat.Suggestions && e.gen != nil {
		var tentative []StockFact
		for _, f := range data.Facts {
			if f.Status == StatusTentative {
				tentative = append(tentative, f)
			}
		}
		s, sdiags := e.gen.Suggest(ctx, conflicts, tentative)
		suggestions = s
		diags = append(diags, sdiags...)
	}

	for _, d := range diags {
		e.log.Warn("engine diagnostic", "equipment", d.EquipmentID, "date", d.Date, "msg", d.Message)
	}
	e.metrics.ConflictsFound(len(conflicts))
	return buildResult(stock, data.Bookings, conflicts, suggestions, diags, fetchedAt), nil
}

// Invalidate marks cache entries touching any of the given equipment ids as
// stale. Collaborators call it after writing a stock fact or booking; with no
// ids every entry goes stale.
func (e *Engine) Invalidate(ids ...EquipmentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.entries {
		if entry.scope.Intersects(ids) {
			entry.state = cacheStale
			entry.fetchedAt = time.Time{}
		}
	}
}

// Close drops all cached state. Subsequent queries fail with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.entries = nil
	e.mu.Unlock()
}

func collectIDs(data LedgerData) []EquipmentID {
	set := make(map[EquipmentID]struct{})
	for _, f := range data.Facts {
		set[f.EquipmentID] = struct{}{}
	}
	for _, b := range data.Bookings {
		set[b.EquipmentID] = struct{}{}
	}
	ids := make([]EquipmentID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ScopeOf(ids...).IDs
}

func overlapsOrAdjacent(a, b DateRange) bool {
	return !b.From.Before(a.From) && !a.To.Next().Before(b.From) ||
		!a.From.Before(b.From) && !b.To.Next().Before(a.From)
}

func union(a, b DateRange) DateRange {
	out := a
	if b.From.Before(out.From) {
		out.From = b.From
	}
	if out.To.Before(b.To) {
		out.To = b.To
	}
	return out
}

// uncovered returns the parts of q not already covered by c: at most one range
// before and one after.
func uncovered(c, q DateRange) []DateRange {
	var out []DateRange
	if q.From.Before(c.From) {
		to := q.To
		if !to.Before(c.From) {
			to = c.From.Prev()
		}
		out = append(out, DateRange{From: q.From, To: to})
	}
	if c.To.Before(q.To) {
		from := q.From
		if !c.To.Before(from) {
			from = c.To.Next()
		}
		out = append(out, DateRange{From: from, To: q.To})
	}
	return out
}
