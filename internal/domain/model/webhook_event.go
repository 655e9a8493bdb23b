package model

import "time"

// Gateway event types the reconciliation service acts upon.
const (
	EventAccountActivated          = "account.activated"
	EventAccountNeedsClarification = "account.needs_clarification"
	EventAccountSuspended          = "account.suspended"
	EventAccountRejected           = "account.rejected"
	EventTransferProcessing        = "transfer.processing"
	EventTransferProcessed         = "transfer.processed"
	EventTransferFailed            = "transfer.failed"
	EventPaymentCaptured           = "payment.captured"
	EventPaymentFailed             = "payment.failed"
	EventRefundCreated             = "refund.created"
	EventRefundProcessed           = "refund.processed"
)

// WebhookEvent is the durable log of gateway pushes. (EventType, EventID) is unique.
type WebhookEvent struct {
	ID                string
	EventType         string
	EventID           string
	Synthetic         bool // EventID was generated, not taken from the payload
	ExternalAccountID string
	Payload           []byte
	Processed         bool
	ProcessedAt       *time.Time
	ProcessingError   string
	Note              string // why an event was acknowledged without effect
	Attempts          int
	CreatedAt         time.Time
}
