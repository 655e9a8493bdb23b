package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, payment_id, external_subscription_ref, start_date, end_date, status, created_at`

// Save inserts or updates by id. A second subscription for the same payment
// violates user_subscriptions.payment_id and returns domain.ErrAlreadyExists.
func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, plan_id, payment_id, external_subscription_ref, start_date, end_date, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  end_date=$7, status=$8;`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, s.PaymentID, s.ExternalSubscriptionRef, s.StartDate, s.EndDate, string(s.Status), s.CreatedAt,
	)
	return writeErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id=$1`
	return r.queryOne(ctx, tx, forUpdate(q, tx), id)
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE payment_id=$1`
	return r.queryOne(ctx, tx, forUpdate(q, tx), paymentID)
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	var s model.UserSubscription
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PaymentID, &s.ExternalSubscriptionRef, &s.StartDate, &s.EndDate, &status, &s.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}
