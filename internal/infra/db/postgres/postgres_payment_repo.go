package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/metrics"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, plan_id, external_order_id, external_payment_id, signature, amount, currency,
  method, status, failure_reason, payment_date, created_at, updated_at`

// Insert relies on the unique external_payment_id; a conflict is not an error.
func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO payments (
  id, user_id, plan_id, external_order_id, external_payment_id, signature, amount, currency,
  method, status, failure_reason, payment_date, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (external_payment_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.PlanID, p.ExternalOrderID, p.ExternalPaymentID, p.Signature, p.Amount, p.Currency,
		p.Method, string(p.Status), p.FailureReason, p.PaymentDate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, writeErr(err)
	}
	if cmd.RowsAffected() == 0 {
		metrics.IncUniqueConflict("payments")
		return false, nil
	}
	return true, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE external_payment_id=$1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), externalPaymentID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// MarkFailedByExternalID never downgrades a successful payment.
func (r *paymentRepo) MarkFailedByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID, reason string) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'failed', failure_reason = $2, updated_at = NOW()
 WHERE external_payment_id = $1
   AND status <> 'failed'
   AND NOT EXISTS (SELECT 1 FROM user_subscriptions s WHERE s.payment_id = payments.id);`
	cmd, err := execSQL(ctx, r.pool, tx, q, externalPaymentID, reason)
	if err != nil {
		return false, writeErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkSucceededByExternalID(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'success', failure_reason = '', amount = $2, currency = $3, method = $4,
       signature = COALESCE(NULLIF($5, ''), signature), payment_date = $6, updated_at = NOW()
 WHERE external_payment_id = $1
   AND status = 'failed';`
	cmd, err := execSQL(ctx, r.pool, tx, q, p.ExternalPaymentID, p.Amount, p.Currency, p.Method, p.Signature, p.PaymentDate)
	if err != nil {
		return false, writeErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListWithoutSubscription(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT p.id, p.user_id, p.plan_id, p.external_order_id, p.external_payment_id, p.signature, p.amount, p.currency,
       p.method, p.status, p.failure_reason, p.payment_date, p.created_at, p.updated_at
  FROM payments p
  LEFT JOIN user_subscriptions s ON s.payment_id = p.id
 WHERE p.status = 'success' AND s.id IS NULL AND p.created_at < $1
 ORDER BY p.created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, writeErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, writeErr(rows.Err())
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var status string
	if err := row.Scan(
		&p.ID, &p.UserID, &p.PlanID, &p.ExternalOrderID, &p.ExternalPaymentID, &p.Signature, &p.Amount, &p.Currency,
		&p.Method, &status, &p.FailureReason, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, scanErr(err)
	}
	p.Status = model.PaymentStatus(status)
	return p, nil
}
