package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// memSource is an in-memory fact/booking/provider source with call counting,
// used to observe the façade's fetch behaviour.
type memSource struct {
	mu           sync.Mutex
	facts        []StockFact
	bookings     []Booking
	providers    map[EquipmentID][]ProviderStat
	err          error
	providerErr  error
	factCalls    int
	bookingCalls int
	factRanges   []DateRange
	block        chan struct{}
}

func (s *memSource) FetchStockFacts(ctx context.Context, scope Scope, r DateRange) ([]StockFact, error) {
	s.mu.Lock()
	s.factCalls++
	s.factRanges = append(s.factRanges, r)
	err := s.err
	facts := append([]StockFact(nil), s.facts...)
	block := s.block
	s.block = nil // only the call that grabs the channel blocks
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	var out []StockFact
	for _, f := range facts {
		if !scope.Contains(f.EquipmentID) {
			continue
		}
		to := f.To
		if to == "" {
			to = f.From
		}
		if f.Kind == FactBase {
			// base levels stay in force until superseded
			if !r.To.Before(f.From) {
				out = append(out, f)
			}
			continue
		}
		if !r.To.Before(f.From) && !to.Before(r.From) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memSource) FetchBookings(ctx context.Context, scope Scope, r DateRange) ([]Booking, error) {
	s.mu.Lock()
	s.bookingCalls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []Booking
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if scope.Contains(b.EquipmentID) && r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memSource) FetchProviderHistory(ctx context.Context, id EquipmentID) ([]ProviderStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.providerErr != nil {
		return nil, s.providerErr
	}
	return s.providers[id], nil
}

func (s *memSource) calls() (facts, bookings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factCalls, s.bookingCalls
}

func (s *memSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *memSource) setFacts(facts []StockFact) {
	s.mu.Lock()
	s.facts = facts
	s.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(src *memSource, strategies map[string]Strategy) *Engine {
	log := discardLogger()
	ledger := NewLedger(src, src, log)
	gen := NewSuggestionGenerator(src, nil)
	return NewEngine(ledger, gen, strategies, nil, log)
}
