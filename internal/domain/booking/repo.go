package booking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

// Repo reads equipment demand from the scheduling tables. It implements
// engine.BookingSource.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// FetchBookings returns all demand rows in the range. Cancelled events are
// excluded here, not downstream.
func (r *Repo) FetchBookings(ctx context.Context, scope engine.Scope, dr engine.DateRange) ([]engine.Booking, error) {
	var ids []int64
	if !scope.All {
		ids = make([]int64, len(scope.IDs))
		for i, id := range scope.IDs {
			ids[i] = int64(id)
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ee.equipment_id, eq.name, ee.booking_date, ee.quantity,
		       e.id, e.name, p.id, p.name
		FROM event_equipment ee
		JOIN events e ON e.id = ee.event_id AND e.status <> 'cancelled'
		JOIN projects p ON p.id = e.project_id
		JOIN equipment eq ON eq.id = ee.equipment_id
		WHERE ee.booking_date BETWEEN $1 AND $2
		  AND ($3::bigint[] IS NULL OR ee.equipment_id = ANY($3))
		ORDER BY ee.equipment_id, ee.booking_date, e.name
	`, dr.From.Time(), dr.To.Time(), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []engine.Booking{}
	for rows.Next() {
		var b engine.Booking
		var date time.Time
		if err := rows.Scan(&b.EquipmentID, &b.EquipmentName, &date, &b.Quantity,
			&b.EventID, &b.EventName, &b.ProjectID, &b.ProjectName); err != nil {
			return nil, err
		}
		b.Date = engine.DayOf(date)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ProjectEquipmentIDs lists the distinct equipment a project's events consume,
// the natural scope for the project cache strategy.
func (r *Repo) ProjectEquipmentIDs(ctx context.Context, projectID int64) ([]engine.EquipmentID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ee.equipment_id
		FROM event_equipment ee
		JOIN events e ON e.id = ee.event_id AND e.status <> 'cancelled'
		WHERE e.project_id = $1
		ORDER BY ee.equipment_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []engine.EquipmentID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, engine.EquipmentID(id))
	}
	return out, rows.Err()
}
