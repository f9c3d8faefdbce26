package provider

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

type Provider struct {
	ID        int64
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// Repo reads external subrental providers and their fulfillment history.
// It implements engine.ProviderSource.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) List(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, active, created_at
		FROM providers
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Provider{}
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FetchProviderHistory counts confirmed subrentals per provider for one
// equipment item. The engine's default ranker sorts on this count.
func (r *Repo) FetchProviderHistory(ctx context.Context, id engine.EquipmentID) ([]engine.ProviderStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, COUNT(*)
		FROM subrental_orders o
		JOIN providers p ON p.id = o.provider_id
		WHERE o.equipment_id = $1
		  AND o.status = 'confirmed'
		  AND o.deleted_at IS NULL
		GROUP BY p.id, p.name
	`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []engine.ProviderStat{}
	for rows.Next() {
		var s engine.ProviderStat
		if err := rows.Scan(&s.ProviderID, &s.ProviderName, &s.Fulfilled); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
