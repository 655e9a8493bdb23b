package model

// Order is the gateway-side order as returned to the client. It is never persisted.
type Order struct {
	ExternalOrderID string
	Amount          int64
	Currency        string
	Receipt         string
	Transfer        *TransferInstruction
}

// TransferInstruction routes MerchantAmount of an order to a linked account.
type TransferInstruction struct {
	RecipientAccountID string
	MerchantAmount     int64
	CommissionAmount   int64
}
