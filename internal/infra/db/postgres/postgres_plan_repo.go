package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.SubscriptionPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, gym_id, name, price, duration_days, is_active, created_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	const q = `
INSERT INTO subscription_plans (id, gym_id, name, price, duration_days, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
  SET gym_id        = EXCLUDED.gym_id,
      name          = EXCLUDED.name,
      price         = EXCLUDED.price,
      duration_days = EXCLUDED.duration_days,
      is_active     = EXCLUDED.is_active;`
	_, err := execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.GymID, plan.Name, plan.Price, plan.DurationDays, plan.IsActive, plan.CreatedAt,
	)
	return writeErr(err)
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	q := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PostgresPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM subscription_plans WHERE is_active ORDER BY gym_id NULLS FIRST, price;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, writeErr(err)
	}
	defer rows.Close()

	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, writeErr(rows.Err())
}

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	var p model.SubscriptionPlan
	if err := row.Scan(&p.ID, &p.GymID, &p.Name, &p.Price, &p.DurationDays, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &p, nil
}
