package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func testStrategies(ttl time.Duration) map[string]Strategy {
	return map[string]Strategy{
		StrategyDashboard: {Name: StrategyDashboard, TTL: ttl, BatchSize: 200, Suggestions: false},
		StrategyTimeline:  {Name: StrategyTimeline, TTL: ttl, BatchSize: 100, Suggestions: true},
	}
}

func overbookedFixture() *memSource {
	return &memSource{
		facts: []StockFact{
			baseFact(1, d1, 10),
			{EquipmentID: 1, From: d2, Kind: FactRepairRemove, Quantity: 3, Status: StatusConfirmed},
		},
		bookings: []Booking{
			// smallest first: cell indexing must sort, not rely on fetch order
			booking(1, d2, 3, "Club B"),
			booking(1, d2, 5, "Festival A"),
			booking(1, d3, 4, "Teater C"),
		},
	}
}

func TestQuery_EndToEnd(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	res, err := e.Query(context.Background(), ScopeOf(1), week(), StrategyTimeline)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stale {
		t.Error("first query must not be stale")
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	if res.Conflicts[0].Deficit != 1 || res.Conflicts[0].Date != d2 {
		t.Errorf("conflict = %+v, want deficit 1 on %s", res.Conflicts[0], d2)
	}
	if len(res.Suggestions) != 1 || res.Suggestions[0].Quantity != 1 {
		t.Errorf("suggestions = %+v, want one for qty 1", res.Suggestions)
	}

	if got := res.Availability(1, d2); got != -1 {
		t.Errorf("availability on %s = %d, want -1", d2, got)
	}
	if got := res.Availability(1, d3); got != 6 {
		t.Errorf("availability on %s = %d, want 6", d3, got)
	}
	if !res.Overbooked(1, d2) || res.Overbooked(1, d3) {
		t.Error("overbooked flags wrong")
	}
	if bs := res.BookingsFor(1, d2); len(bs) != 2 || bs[0].EventName != "Festival A" || bs[1].EventName != "Club B" {
		t.Errorf("bookings for %s = %+v, want largest first", d2, bs)
	}
}

func TestQuery_Idempotent(t *testing.T) {
	a := newTestEngine(overbookedFixture(), testStrategies(time.Minute))
	b := newTestEngine(overbookedFixture(), testStrategies(time.Minute))
	defer a.Close()
	defer b.Close()

	r1, err := a.Query(context.Background(), ScopeOf(1), week(), StrategyTimeline)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.Query(context.Background(), ScopeOf(1), week(), StrategyTimeline)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r1.Conflicts, r2.Conflicts) {
		t.Errorf("conflict lists differ:\n%+v\n%+v", r1.Conflicts, r2.Conflicts)
	}
	if !reflect.DeepEqual(r1.Suggestions, r2.Suggestions) {
		t.Errorf("suggestion lists differ")
	}
}

func TestQuery_CacheHitAvoidsRefetch(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	ctx := context.Background()
	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if facts, _ := src.calls(); facts != 1 {
		t.Errorf("fact fetches = %d, want 1 (second query from cache)", facts)
	}
}

func TestQuery_OverlapFetchesOnlyUncoveredDays(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	ctx := context.Background()
	if _, err := e.Query(ctx, ScopeOf(1), DateRange{From: d1, To: d3}, StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	res, err := e.Query(ctx, ScopeOf(1), DateRange{From: d2, To: d5}, StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Date != d2 {
		t.Fatalf("merged result lost the conflict: %+v", res.Conflicts)
	}

	src.mu.Lock()
	ranges := append([]DateRange(nil), src.factRanges...)
	src.mu.Unlock()
	if len(ranges) != 2 {
		t.Fatalf("expected 2 fact fetches, got %d (%v)", len(ranges), ranges)
	}
	if ranges[1].From != d4 || ranges[1].To != d5 {
		t.Errorf("second fetch = %s..%s, want only uncovered %s..%s", ranges[1].From, ranges[1].To, d4, d5)
	}

	// fully covered follow-up must not fetch at all
	if _, err := e.Query(ctx, ScopeOf(1), DateRange{From: d2, To: d4}, StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if facts, _ := src.calls(); facts != 2 {
		t.Errorf("fact fetches = %d, want 2", facts)
	}
}

func TestQuery_ExtensionKeepsOlderFetchTime(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()
	ctx := context.Background()

	first, err := e.Query(ctx, ScopeOf(1), DateRange{From: d1, To: d3}, StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := e.Query(ctx, ScopeOf(1), DateRange{From: d2, To: d5}, StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	// reused days must age out on their own fetch time, not the extension's
	if !second.FetchedAt.Equal(first.FetchedAt) {
		t.Errorf("extended snapshot fetched at %v, want the original %v", second.FetchedAt, first.FetchedAt)
	}
}

func TestQuery_AbandonedFetchNeverOverwritesNewerSnapshot(t *testing.T) {
	src := &memSource{
		facts:    []StockFact{baseFact(1, d1, 10)},
		bookings: []Booking{booking(1, d2, 8, "Festival A")},
	}
	block := make(chan struct{})
	src.block = block
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := e.Query(ctx, ScopeOf(1), DateRange{From: d1, To: d3}, StrategyDashboard); err != nil {
			t.Error(err)
		}
	}()
	time.Sleep(20 * time.Millisecond) // let the first fetch get in flight

	// the level drops while the old fetch hangs; a wider query fetches anew
	src.setFacts([]StockFact{baseFact(1, d1, 5)})
	fresh, err := e.Query(ctx, ScopeOf(1), DateRange{From: d1, To: d5}, StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.Conflicts) != 1 || fresh.Conflicts[0].Deficit != 3 {
		t.Fatalf("conflicts = %+v, want deficit 3 against the lowered level", fresh.Conflicts)
	}

	close(block)
	<-done

	// the late fetch answered its own caller but must not have been cached
	factsBefore, _ := src.calls()
	res, err := e.Query(ctx, ScopeOf(1), DateRange{From: d1, To: d5}, StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	if factsAfter, _ := src.calls(); factsAfter != factsBefore {
		t.Errorf("cache entry was clobbered by the abandoned fetch: %d -> %d fetches", factsBefore, factsAfter)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Deficit != 3 {
		t.Errorf("cached snapshot = %+v, want the newer fetch's deficit 3", res.Conflicts)
	}
}

func TestQuery_ServeStaleOnError(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	ctx := context.Background()
	fresh, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}

	src.setErr(errors.New("connection refused"))
	e.Invalidate(1)

	stale, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard)
	if err != nil {
		t.Fatalf("expected stale fallback, got error %v", err)
	}
	if !stale.Stale {
		t.Error("result must be marked stale")
	}
	if !reflect.DeepEqual(fresh.Conflicts, stale.Conflicts) {
		t.Error("stale snapshot must carry the last fresh conflicts")
	}
}

func TestQuery_ErrorWithoutSnapshotPropagates(t *testing.T) {
	src := &memSource{err: errors.New("connection refused")}
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	_, err := e.Query(context.Background(), ScopeOf(1), week(), StrategyDashboard)
	var dserr *DataSourceError
	if !errors.As(err, &dserr) {
		t.Fatalf("expected DataSourceError, got %v", err)
	}
}

func TestQuery_ValidationErrors(t *testing.T) {
	e := newTestEngine(&memSource{}, testStrategies(time.Minute))
	defer e.Close()
	ctx := context.Background()

	cases := []struct {
		name  string
		scope Scope
		r     DateRange
		strat string
	}{
		{"inverted range", ScopeOf(1), DateRange{From: d3, To: d1}, StrategyDashboard},
		{"empty scope", Scope{}, week(), StrategyDashboard},
		{"unknown strategy", ScopeOf(1), week(), "hourly"},
	}
	for _, c := range cases {
		_, err := e.Query(ctx, c.scope, c.r, c.strat)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", c.name, err)
		}
	}
}

func TestQuery_NegativeBookingAborts(t *testing.T) {
	src := &memSource{bookings: []Booking{booking(1, d1, -4, "Bad import")}}
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	_, err := e.Query(context.Background(), ScopeOf(1), week(), StrategyDashboard)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestQuery_SuggestionsFollowStrategy(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()
	ctx := context.Background()

	dash, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard)
	if err != nil {
		t.Fatal(err)
	}
	if len(dash.Suggestions) != 0 {
		t.Error("dashboard strategy must not generate suggestions")
	}

	tl, err := e.Query(ctx, ScopeOf(1), week(), StrategyTimeline)
	if err != nil {
		t.Fatal(err)
	}
	if len(tl.Suggestions) == 0 {
		t.Error("timeline strategy must generate suggestions")
	}
}

func TestQuery_TTLExpiryRefetches(t *testing.T) {
	src := overbookedFixture()
	e := newTestEngine(src, testStrategies(time.Millisecond))
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if facts, _ := src.calls(); facts != 2 {
		t.Errorf("fact fetches = %d, want 2 after TTL expiry", facts)
	}
}

func TestQuery_CoalescesIdenticalRequests(t *testing.T) {
	src := overbookedFixture()
	block := make(chan struct{})
	src.block = block
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := e.Query(context.Background(), ScopeOf(1), week(), StrategyDashboard); err != nil {
				t.Error(err)
			}
		}()
	}
	close(start)
	time.Sleep(20 * time.Millisecond) // let both reach the singleflight
	close(block)
	wg.Wait()

	if facts, _ := src.calls(); facts != 1 {
		t.Errorf("fact fetches = %d, want 1 (identical in-flight requests must coalesce)", facts)
	}
}

func TestInvalidate_ScopedToEquipment(t *testing.T) {
	src := overbookedFixture()
	src.facts = append(src.facts, baseFact(2, d1, 3))
	e := newTestEngine(src, testStrategies(time.Minute))
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Query(ctx, ScopeOf(2), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	before, _ := src.calls()

	e.Invalidate(1)
	if _, err := e.Query(ctx, ScopeOf(2), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if after, _ := src.calls(); after != before {
		t.Errorf("scope {2} was invalidated by mistake: %d -> %d fetches", before, after)
	}
	if _, err := e.Query(ctx, ScopeOf(1), week(), StrategyDashboard); err != nil {
		t.Fatal(err)
	}
	if after, _ := src.calls(); after != before+1 {
		t.Errorf("scope {1} must refetch after invalidation")
	}
}

func TestClose(t *testing.T) {
	e := newTestEngine(&memSource{}, testStrategies(time.Minute))
	e.Close()
	if _, err := e.Query(context.Background(), ScopeOf(1), week(), StrategyDashboard); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLedger_PartitionsWideScopes(t *testing.T) {
	src := &memSource{}
	ledger := NewLedger(src, src, discardLogger())

	scope := ScopeOf(1, 2, 3, 4, 5)
	if _, err := ledger.Fetch(context.Background(), scope, week(), 2); err != nil {
		t.Fatal(err)
	}
	if facts, bookings := src.calls(); facts != 3 || bookings != 3 {
		t.Errorf("calls = %d/%d, want 3/3 batches of <=2 ids", facts, bookings)
	}
}
