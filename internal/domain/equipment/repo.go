package equipment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, category, active, created_at
		FROM equipment
		WHERE id = $1
	`, id)
	var it Item
	if err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Active, &it.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repo) List(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, category, active, created_at
		FROM equipment
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Active, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListIDs returns every active equipment id, for widening an "all" scope into
// an explicit one.
func (r *Repo) ListIDs(ctx context.Context) ([]engine.EquipmentID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM equipment WHERE active ORDER BY id`)
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
