package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

var (
	_ repository.UserRepository = (*PostgresUserRepo)(nil)
	_ repository.GymRepository  = (*PostgresGymRepo)(nil)
)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (id, gym_id, role, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET gym_id = EXCLUDED.gym_id, role = EXCLUDED.role;`
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.GymID, string(u.Role), createdAt)
	return writeErr(err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT id, gym_id, role, created_at FROM users WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.GymID, &role, &u.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

type PostgresGymRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresGymRepo(pool *pgxpool.Pool) *PostgresGymRepo {
	return &PostgresGymRepo{pool: pool}
}

func (r *PostgresGymRepo) Save(ctx context.Context, tx repository.Tx, g *model.Gym) error {
	const q = `
INSERT INTO gyms (id, name, owner_id) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner_id = EXCLUDED.owner_id;`
	_, err := execSQL(ctx, r.pool, tx, q, g.ID, g.Name, g.OwnerID)
	return writeErr(err)
}

func (r *PostgresGymRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Gym, error) {
	const q = `SELECT id, name, owner_id FROM gyms WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var g model.Gym
	if err := row.Scan(&g.ID, &g.Name, &g.OwnerID); err != nil {
		return nil, scanErr(err)
	}
	return &g, nil
}
