package adapter

import (
	"context"
	"time"
)

// OrderRequest is what the platform asks the gateway to collect.
type OrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Notes    map[string]string
	// Transfer is set for routed orders only.
	Transfer *TransferRequest
}

// TransferRequest instructs the gateway to move Amount to a linked account on capture.
type TransferRequest struct {
	Account  string
	Amount   int64
	Currency string
	Notes    map[string]string
}

type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// GatewayPayment is the authoritative payment state at the gateway.
type GatewayPayment struct {
	ID        string
	OrderID   string
	Amount    int64
	Currency  string
	Status    string // created|authorized|captured|refunded|failed
	Method    string
	Captured  bool
	Notes     map[string]string
	CreatedAt time.Time
}

func (p GatewayPayment) IsCaptured() bool { return p.Captured || p.Status == "captured" }

type GatewayTransfer struct {
	ID        string
	Source    string // payment id
	Recipient string // linked account id
	Amount    int64
	Currency  string
	Status    string // created|pending|processed|failed|reversed
}

// LinkedAccountRequest carries the business profile sent during onboarding.
type LinkedAccountRequest struct {
	ReferenceID  string
	Email        string
	Phone        string
	LegalName    string
	BusinessType string
	ContactName  string
	Category     string
	Subcategory  string
}

type LinkedAccount struct {
	ID             string
	Status         string
	OnboardingLink string
}

// PaymentGateway is the hex port for the marketplace payment provider.
// Implementations must bound every call with a timeout and fail closed.
type PaymentGateway interface {
	Name() string

	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	// FetchTransfers lists transfers whose source is paymentID.
	FetchTransfers(ctx context.Context, paymentID string) ([]GatewayTransfer, error)
	CreateLinkedAccount(ctx context.Context, req LinkedAccountRequest) (*LinkedAccount, error)
}
