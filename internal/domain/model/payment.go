package model

import "time"

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is written exactly once per verified gateway payment.
// ExternalPaymentID is unique in the store and is the dedup key.
type Payment struct {
	ID                string
	UserID            string
	PlanID            string
	ExternalOrderID   string
	ExternalPaymentID string
	Signature         string
	Amount            int64 // minor units
	Currency          string
	Method            string
	Status            PaymentStatus
	FailureReason     string
	PaymentDate       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type TransferStatus string

const (
	TransferStatusCreated     TransferStatus = "created"
	TransferStatusProcessing  TransferStatus = "processing"
	TransferStatusTransferred TransferStatus = "transferred"
	TransferStatusFailed      TransferStatus = "failed"
)

func (s TransferStatus) Terminal() bool {
	return s == TransferStatusTransferred || s == TransferStatusFailed
}

// CanTransition allows created -> processing -> {transferred|failed} and
// created -> {transferred|failed} directly. Terminal states never move.
func (s TransferStatus) CanTransition(to TransferStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case TransferStatusCreated:
		return to == TransferStatusProcessing || to.Terminal()
	case TransferStatusProcessing:
		return to.Terminal()
	}
	return false
}

// RouteTransaction records the split of one routed payment (1:1 with Payment).
type RouteTransaction struct {
	ID                 string
	PaymentID          string
	MerchantAccountID  string
	ExternalAccountID  string
	TotalAmount        int64
	MerchantAmount     int64
	PlatformCommission int64
	ExternalTransferID string
	TransferStatus     TransferStatus
	FailureReason      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	TransferredAt      *time.Time
}

// Balanced checks merchant_amount + platform_commission == total_amount.
func (r *RouteTransaction) Balanced() bool {
	return r.MerchantAmount+r.PlatformCommission == r.TotalAmount
}

type RefundStatus string

const (
	RefundStatusCreated   RefundStatus = "created"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

// RefundRequest mirrors a gateway refund for a payment.
type RefundRequest struct {
	ID                string
	ExternalRefundID  string
	ExternalPaymentID string
	PaymentID         *string
	Amount            int64
	Currency          string
	Status            RefundStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
