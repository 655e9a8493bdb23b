package repository

import (
	"context"
	"time"

	"gym-payments/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Insert writes p unless a row with the same external_payment_id exists.
	// inserted=false means a concurrent or earlier call already recorded it.
	Insert(ctx context.Context, tx Tx, p *model.Payment) (inserted bool, err error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByExternalID(ctx context.Context, tx Tx, externalPaymentID string) (*model.Payment, error)
	// MarkFailedByExternalID is a no-op when the row is absent or already failed.
	MarkFailedByExternalID(ctx context.Context, tx Tx, externalPaymentID, reason string) (bool, error)
	// MarkSucceededByExternalID promotes a failed row to success with the captured
	// amount, currency and method, and clears failure_reason. An empty signature
	// keeps the stored one. Returns false when no failed row matched.
	MarkSucceededByExternalID(ctx context.Context, tx Tx, p *model.Payment) (bool, error)
	// ListWithoutSubscription returns successful payments older than olderThan
	// that have no subscription row (compensating sweep input).
	ListWithoutSubscription(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}

// -----------------------------
// Route transactions
// -----------------------------

type RouteTransactionRepository interface {
	Insert(ctx context.Context, tx Tx, rt *model.RouteTransaction) error
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.RouteTransaction, error)
	FindByTransferID(ctx context.Context, tx Tx, externalTransferID string) (*model.RouteTransaction, error)
	// UpdateTransferStatus moves a non-terminal row to status. Returns false when
	// no row matched (unknown transfer or already terminal).
	UpdateTransferStatus(ctx context.Context, tx Tx, externalTransferID string, status model.TransferStatus, failureReason string, at time.Time) (bool, error)
}

// -----------------------------
// Refunds
// -----------------------------

type RefundRepository interface {
	// Upsert keyed by external_refund_id; only status/amount/updated_at change on conflict.
	Upsert(ctx context.Context, tx Tx, r *model.RefundRequest) error
	FindByExternalID(ctx context.Context, tx Tx, externalRefundID string) (*model.RefundRequest, error)
}
