package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

// Upsert keeps a processed refund processed.
func (r *refundRepo) Upsert(ctx context.Context, tx repository.Tx, rr *model.RefundRequest) error {
	const q = `
INSERT INTO refund_requests (
  id, external_refund_id, external_payment_id, payment_id, amount, currency, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (external_refund_id) DO UPDATE SET
  status     = CASE WHEN refund_requests.status = 'processed' THEN refund_requests.status ELSE EXCLUDED.status END,
  amount     = EXCLUDED.amount,
  payment_id = COALESCE(refund_requests.payment_id, EXCLUDED.payment_id),
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		rr.ID, rr.ExternalRefundID, rr.ExternalPaymentID, rr.PaymentID, rr.Amount, rr.Currency, string(rr.Status), rr.CreatedAt, rr.UpdatedAt,
	)
	return writeErr(err)
}

func (r *refundRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalRefundID string) (*model.RefundRequest, error) {
	q := `SELECT id, external_refund_id, external_payment_id, payment_id, amount, currency, status, created_at, updated_at
  FROM refund_requests WHERE external_refund_id=$1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), externalRefundID)
	if err != nil {
		return nil, err
	}
	rr := &model.RefundRequest{}
	var status string
	if err := row.Scan(&rr.ID, &rr.ExternalRefundID, &rr.ExternalPaymentID, &rr.PaymentID, &rr.Amount, &rr.Currency, &status, &rr.CreatedAt, &rr.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	rr.Status = model.RefundStatus(status)
	return rr, nil
}
