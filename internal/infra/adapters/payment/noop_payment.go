package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs and tests.
// Capture plays the customer's checkout and the gateway's automatic transfer.
type NoopPaymentGateway struct {
	mu        sync.Mutex
	seq       int64
	orders    map[string]adapter.OrderRequest
	payments  map[string]*adapter.GatewayPayment
	transfers map[string][]adapter.GatewayTransfer
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		orders:    make(map[string]adapter.OrderRequest),
		payments:  make(map[string]*adapter.GatewayPayment),
		transfers: make(map[string][]adapter.GatewayTransfer),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop%06d", prefix, g.seq)
}

func (g *NoopPaymentGateway) CreateOrder(ctx context.Context, req adapter.OrderRequest) (*adapter.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("order")
	g.orders[id] = req
	return &adapter.GatewayOrder{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

// Capture pays orderID in full and returns the payment id.
func (g *NoopPaymentGateway) Capture(orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: noop: order %s not found", domain.ErrGateway, orderID)
	}
	pid := g.next("pay")
	g.payments[pid] = &adapter.GatewayPayment{
		ID: pid, OrderID: orderID, Amount: o.Amount, Currency: o.Currency,
		Status: "captured", Captured: true, Method: "noop", Notes: o.Notes, CreatedAt: time.Now().UTC(),
	}
	if t := o.Transfer; t != nil {
		g.transfers[pid] = append(g.transfers[pid], adapter.GatewayTransfer{
			ID: g.next("trf"), Source: pid, Recipient: t.Account, Amount: t.Amount, Currency: t.Currency, Status: "processed",
		})
	}
	return pid, nil
}

func (g *NoopPaymentGateway) FetchPayment(ctx context.Context, paymentID string) (*adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: noop: payment %s not found", domain.ErrGateway, paymentID)
	}
	cp := *p
	return &cp, nil
}

func (g *NoopPaymentGateway) FetchTransfers(ctx context.Context, paymentID string) ([]adapter.GatewayTransfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]adapter.GatewayTransfer(nil), g.transfers[paymentID]...), nil
}

// CreateLinkedAccount activates accounts immediately; there is no KYC locally.
func (g *NoopPaymentGateway) CreateLinkedAccount(ctx context.Context, req adapter.LinkedAccountRequest) (*adapter.LinkedAccount, error) {
	return &adapter.LinkedAccount{ID: "acc_" + req.ReferenceID, Status: "activated"}, nil
}
