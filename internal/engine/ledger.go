package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// FactSource and BookingSource are the persistence boundary. Implementations
// must exclude cancelled bookings and deleted facts, and return every fact
// whose day span intersects the range (including the base level in force at
// the range start).
type FactSource interface {
	FetchStockFacts(ctx context.Context, scope Scope, r DateRange) ([]StockFact, error)
}

type BookingSource interface {
	FetchBookings(ctx context.Context, scope Scope, r DateRange) ([]Booking, error)
}

// LedgerData is one consistent raw-fact snapshot for a scope and range.
type LedgerData struct {
	Facts    []StockFact
	Bookings []Booking
}

// Ledger fetches raw facts and bookings, partitioning wide scopes into
// independent equipment batches fetched in parallel. Batches are
// order-insensitive and merge by concatenation.
type Ledger struct {
	facts    FactSource
	bookings BookingSource
	log      *slog.Logger
}

const ledgerParallelism = 4

func NewLedger(facts FactSource, bookings BookingSource, log *slog.Logger) *Ledger {
	return &Ledger{facts: facts, bookings: bookings, log: log}
}

// Fetch loads all facts and bookings for the scope and range. Each source call
// is retried with backoff before the whole fetch fails with a DataSourceError.
func (l *Ledger) Fetch(ctx context.Context, scope Scope, r DateRange, batchSize int) (LedgerData, error) {
	var (
		mu   sync.Mutex
		data LedgerData
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ledgerParallelism)

	for _, part := range partition(scope, batchSize) {
		g.Go(func() error {
			facts, err := fetchWithRetry(gctx, "stock facts", func(ctx context.Context) ([]StockFact, error) {
				return l.facts.FetchStockFacts(ctx, part, r)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			data.Facts = append(data.Facts, facts...)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			bookings, err := fetchWithRetry(gctx, "bookings", func(ctx context.Context) ([]Booking, error) {
				return l.bookings.FetchBookings(ctx, part, r)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			data.Bookings = append(data.Bookings, bookings...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.log.Warn("ledger fetch failed", "scope", scope.key(), "from", r.From, "to", r.To, "err", err)
		return LedgerData{}, err
	}
	return data, nil
}

// partition splits an explicit id scope into batches. "all" scopes cannot be
// partitioned client-side and fetch in one call.
func partition(scope Scope, batchSize int) []Scope {
	if scope.All || batchSize <= 0 || len(scope.IDs) <= batchSize {
		return []Scope{scope}
	}
	var out []Scope
	for start := 0; start < len(scope.IDs); start += batchSize {
		end := start + batchSize
		if end > len(scope.IDs) {
			end = len(scope.IDs)
		}
		out = append(out, Scope{IDs: scope.IDs[start:end]})
	}
	return out
}

func fetchWithRetry[T any](ctx context.Context, op string, fn func(context.Context) ([]T, error)) ([]T, error) {
	var out []T
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, &DataSourceError{Op: op, Err: err}
	}
	return out, nil
}
