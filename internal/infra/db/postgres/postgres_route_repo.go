package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/metrics"
)

var _ repository.RouteTransactionRepository = (*routeRepo)(nil)

type routeRepo struct{ pool *pgxpool.Pool }

func NewRouteRepo(pool *pgxpool.Pool) *routeRepo {
	return &routeRepo{pool: pool}
}

const routeColumns = `id, payment_id, merchant_account_id, external_account_id, total_amount, merchant_amount,
  platform_commission, external_transfer_id, transfer_status, failure_reason, created_at, updated_at, transferred_at`

// Insert fails with domain.ErrAlreadyExists when the payment already has a route.
// The route_split_balanced check rejects unbalanced rows.
func (r *routeRepo) Insert(ctx context.Context, tx repository.Tx, rt *model.RouteTransaction) error {
	const q = `
INSERT INTO route_transactions (
  id, payment_id, merchant_account_id, external_account_id, total_amount, merchant_amount,
  platform_commission, external_transfer_id, transfer_status, failure_reason, created_at, updated_at, transferred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q,
		rt.ID, rt.PaymentID, rt.MerchantAccountID, rt.ExternalAccountID, rt.TotalAmount, rt.MerchantAmount,
		rt.PlatformCommission, rt.ExternalTransferID, string(rt.TransferStatus), rt.FailureReason, rt.CreatedAt, rt.UpdatedAt, rt.TransferredAt,
	)
	err = writeErr(err)
	if errors.Is(err, domain.ErrAlreadyExists) {
		metrics.IncUniqueConflict("route_transactions")
	}
	return err
}

func (r *routeRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.RouteTransaction, error) {
	q := `SELECT ` + routeColumns + ` FROM route_transactions WHERE payment_id=$1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), paymentID)
	if err != nil {
		return nil, err
	}
	return scanRoute(row)
}

func (r *routeRepo) FindByTransferID(ctx context.Context, tx repository.Tx, externalTransferID string) (*model.RouteTransaction, error) {
	q := `SELECT ` + routeColumns + ` FROM route_transactions WHERE external_transfer_id=$1 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, forUpdate(q, tx), externalTransferID)
	if err != nil {
		return nil, err
	}
	return scanRoute(row)
}

// UpdateTransferStatus only moves rows that are not yet terminal, so a late
// or replayed event cannot flip transferred <-> failed.
func (r *routeRepo) UpdateTransferStatus(ctx context.Context, tx repository.Tx, externalTransferID string, status model.TransferStatus, failureReason string, at time.Time) (bool, error) {
	const q = `
UPDATE route_transactions
   SET transfer_status = $2,
       failure_reason  = CASE WHEN $3 = '' THEN failure_reason ELSE $3 END,
       transferred_at  = CASE WHEN $2 = 'transferred' THEN COALESCE(transferred_at, $4) ELSE transferred_at END,
       updated_at      = $4
 WHERE external_transfer_id = $1
   AND (transfer_status NOT IN ('transferred', 'failed') OR transfer_status = $2);`
	cmd, err := execSQL(ctx, r.pool, tx, q, externalTransferID, string(status), failureReason, at)
	if err != nil {
		return false, writeErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func scanRoute(row pgx.Row) (*model.RouteTransaction, error) {
	rt := &model.RouteTransaction{}
	var status string
	if err := row.Scan(
		&rt.ID, &rt.PaymentID, &rt.MerchantAccountID, &rt.ExternalAccountID, &rt.TotalAmount, &rt.MerchantAmount,
		&rt.PlatformCommission, &rt.ExternalTransferID, &status, &rt.FailureReason, &rt.CreatedAt, &rt.UpdatedAt, &rt.TransferredAt,
	); err != nil {
		return nil, scanErr(err)
	}
	rt.TransferStatus = model.TransferStatus(status)
	return rt, nil
}
