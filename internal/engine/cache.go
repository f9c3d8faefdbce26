package engine

import (
	"sort"
	"time"
)

// Result is one immutable engine snapshot. Readers may hold it while the
// façade refreshes; a refresh swaps whole snapshots and never mutates one in
// place.
type Result struct {
	Conflicts   []ConflictAnalysis
	Suggestions []SubrentalSuggestion
	Diagnostics []Diagnostic

	// Stale marks a snapshot served from cache after a failed refresh, so
	// consumers can signal reduced confidence.
	Stale     bool
	FetchedAt time.Time

	cells map[cellKey]resultCell
}

type resultCell struct {
	bookings  []Booking
	effective int64
	used      int64
}

// BookingsFor returns the bookings consuming the cell, largest first.
func (r *Result) BookingsFor(id EquipmentID, d Day) []Booking {
	return r.cells[cellKey{id, d}].bookings
}

// Availability returns effective stock minus booked quantity for the cell.
// Negative values mean the cell is overbooked; unknown cells report zero.
func (r *Result) Availability(id EquipmentID, d Day) int64 {
	c := r.cells[cellKey{id, d}]
	return c.effective - c.used
}

func (r *Result) Overbooked(id EquipmentID, d Day) bool {
	c := r.cells[cellKey{id, d}]
	return c.used > c.effective
}

// buildResult indexes the pipeline output for O(1) cell lookups.
func buildResult(stock map[cellKey]EffectiveStock, bookings []Booking, conflicts []ConflictAnalysis, suggestions []SubrentalSuggestion, diags []Diagnostic, fetchedAt time.Time) *Result {
	cells := make(map[cellKey]resultCell, len(stock))
	for key, es := range stock {
		cells[key] = resultCell{effective: es.Effective}
	}
	for _, b := range bookings {
		if b.Quantity == 0 {
			continue
		}
		key := cellKey{b.EquipmentID, b.Date}
		c := cells[key]
		c.bookings = append(c.bookings, b)
		c.used += b.Quantity
		cells[key] = c
	}
	// same order as a conflict's affected events
	for _, c := range cells {
		sort.SliceStable(c.bookings, func(i, j int) bool {
			if c.bookings[i].Quantity != c.bookings[j].Quantity {
				return c.bookings[i].Quantity > c.bookings[j].Quantity
			}
			return c.bookings[i].EventName < c.bookings[j].EventName
		})
	}
	return &Result{
		Conflicts:   conflicts,
		Suggestions: suggestions,
		Diagnostics: diags,
		FetchedAt:   fetchedAt,
		cells:       cells,
	}
}

// slice narrows a snapshot to the requested range. The cell index is shared:
// it only ever grows coverage, never changes values, so a wider index behind a
// narrower view is harmless.
func (r *Result) slice(q DateRange, stale bool) *Result {
	out := &Result{
		Stale:       stale,
		FetchedAt:   r.FetchedAt,
		Diagnostics: r.Diagnostics,
		cells:       r.cells,
	}
	for _, c := range r.Conflicts {
		if q.Contains(c.Date) {
			out.Conflicts = append(out.Conflicts, c)
		}
	}
	for _, s := range r.Suggestions {
		if !s.Range.To.Before(q.From) && !q.To.Before(s.Range.From) {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	return out
}

type cacheState string

const (
	cacheEmpty   cacheState = "empty"
	cacheLoading cacheState = "loading"
	cacheFresh   cacheState = "fresh"
	cacheStale   cacheState = "stale"
	cacheError   cacheState = "error"
)

// cacheEntry is one cached snapshot per (strategy, scope). Its range grows as
// overlapping queries extend it; raw ledger data is kept so an extension only
// fetches the uncovered days.
type cacheEntry struct {
	scope     Scope
	r         DateRange
	state     cacheState
	data      LedgerData
	snap      *Result
	fetchedAt time.Time
	gen       uint64
}

// freshFor deliberately ignores state: an entry being refreshed (LOADING)
// keeps serving its previous snapshot until the swap. Invalidation zeroes
// fetchedAt instead of touching the snapshot.
func (e *cacheEntry) freshFor(ttl time.Duration, now time.Time) bool {
	return e.snap != nil && !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < ttl
}
