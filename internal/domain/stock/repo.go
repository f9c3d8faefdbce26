package stock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

// Repo reads stock facts for the engine's ledger: base levels plus subrental
// and repair adjustments. It implements engine.FactSource.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// FetchStockFacts returns every fact whose day span intersects the range.
// Base levels effective before the range are included too: the calculator
// needs the level in force at the range start. Deleted rows never surface.
func (r *Repo) FetchStockFacts(ctx context.Context, scope engine.Scope, dr engine.DateRange) ([]engine.StockFact, error) {
	ids := scopeIDs(scope)
	out := []engine.StockFact{}

	rows, err := r.pool.Query(ctx, `
		SELECT equipment_id, effective_from, quantity
		FROM equipment_stock_levels
		WHERE effective_from <= $1
		  AND ($2::bigint[] IS NULL OR equipment_id = ANY($2))
		ORDER BY equipment_id, effective_from
	`, dr.To.Time(), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		f := engine.StockFact{Kind: engine.FactBase, Status: engine.StatusConfirmed}
		var from time.Time
		if err := rows.Scan(&f.EquipmentID, &from, &f.Quantity); err != nil {
			return nil, err
		}
		f.From = engine.DayOf(from)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT equipment_id, start_date, end_date, quantity, status
		FROM subrental_orders
		WHERE deleted_at IS NULL
		  AND start_date <= $2 AND end_date >= $1
		  AND ($3::bigint[] IS NULL OR equipment_id = ANY($3))
	`, dr.From.Time(), dr.To.Time(), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanAdjustment(rows.Scan, engine.FactSubrentalAdd)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT equipment_id, start_date, end_date, quantity, status
		FROM equipment_repairs
		WHERE deleted_at IS NULL
		  AND start_date <= $2 AND end_date >= $1
		  AND ($3::bigint[] IS NULL OR equipment_id = ANY($3))
	`, dr.From.Time(), dr.To.Time(), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanAdjustment(rows.Scan, engine.FactRepairRemove)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanAdjustment(scan func(...any) error, kind engine.FactKind) (engine.StockFact, error) {
	f := engine.StockFact{Kind: kind}
	var from, to time.Time
	var status string
	if err := scan(&f.EquipmentID, &from, &to, &f.Quantity, &status); err != nil {
		return f, err
	}
	f.From, f.To = engine.DayOf(from), engine.DayOf(to)
	f.Status = engine.FactStatus(status)
	return f, nil
}

func scopeIDs(scope engine.Scope) []int64 {
	if scope.All {
		return nil
	}
	ids := make([]int64, len(scope.IDs))
	for i, id := range scope.IDs {
		ids[i] = int64(id)
	}
	return ids
}
