package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*RazorpayGateway)(nil)

// RazorpayGateway implements adapter.PaymentGateway against the Razorpay REST API
// (orders, payments, Route transfers and linked accounts) with basic auth.
type RazorpayGateway struct {
	client *resty.Client
	log    *zerolog.Logger
}

type RazorpayOptions struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

func NewRazorpayGateway(opts RazorpayOptions, logger *zerolog.Logger) (*RazorpayGateway, error) {
	if opts.KeyID == "" || opts.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.razorpay.com"
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetBasicAuth(opts.KeyID, opts.KeySecret).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	l := logger.With().Str("component", "RazorpayGateway").Logger()
	return &RazorpayGateway{client: client, log: &l}, nil
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

// -----------------------------
// Wire types
// -----------------------------

type rzpError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
		Field       string `json:"field"`
	} `json:"error"`
}

type rzpTransfer struct {
	ID        string            `json:"id,omitempty"`
	Source    string            `json:"source,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
	Account   string            `json:"account,omitempty"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	OnHold    bool              `json:"on_hold"`
}

type rzpOrder struct {
	ID        string            `json:"id,omitempty"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	Transfers []rzpTransfer     `json:"transfers,omitempty"`
}

type rzpPayment struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    string        `json:"status"`
	Method    string        `json:"method"`
	Captured  bool          `json:"captured"`
	Notes     adapter.Notes `json:"notes"`
	CreatedAt int64         `json:"created_at"`
}

type rzpAccount struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	OnboardingLink string `json:"onboarding_link"`
}

// -----------------------------
// Operations
// -----------------------------

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req adapter.OrderRequest) (*adapter.GatewayOrder, error) {
	body := rzpOrder{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	}
	if t := req.Transfer; t != nil {
		body.Transfers = []rzpTransfer{{
			Account:  t.Account,
			Amount:   t.Amount,
			Currency: t.Currency,
			Notes:    t.Notes,
		}}
	}
	var out rzpOrder
	if err := g.do(ctx, "create_order", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Post("/v1/orders")
	}); err != nil {
		return nil, err
	}
	return &adapter.GatewayOrder{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Receipt: out.Receipt, Status: out.Status}, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*adapter.GatewayPayment, error) {
	var out rzpPayment
	if err := g.do(ctx, "fetch_payment", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", paymentID).SetResult(&out).Get("/v1/payments/{id}")
	}); err != nil {
		return nil, err
	}
	p := &adapter.GatewayPayment{
		ID:       out.ID,
		OrderID:  out.OrderID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Status:   out.Status,
		Method:   out.Method,
		Captured: out.Captured,
		Notes:    out.Notes,
	}
	if out.CreatedAt > 0 {
		p.CreatedAt = time.Unix(out.CreatedAt, 0).UTC()
	}
	return p, nil
}

func (g *RazorpayGateway) FetchTransfers(ctx context.Context, paymentID string) ([]adapter.GatewayTransfer, error) {
	var out struct {
		Items []rzpTransfer `json:"items"`
	}
	if err := g.do(ctx, "fetch_transfers", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", paymentID).SetResult(&out).Get("/v1/payments/{id}/transfers")
	}); err != nil {
		return nil, err
	}
	transfers := make([]adapter.GatewayTransfer, 0, len(out.Items))
	for _, t := range out.Items {
		transfers = append(transfers, adapter.GatewayTransfer{
			ID:        t.ID,
			Source:    t.Source,
			Recipient: t.Recipient,
			Amount:    t.Amount,
			Currency:  t.Currency,
			Status:    t.Status,
		})
	}
	return transfers, nil
}

func (g *RazorpayGateway) CreateLinkedAccount(ctx context.Context, req adapter.LinkedAccountRequest) (*adapter.LinkedAccount, error) {
	body := map[string]any{
		"email":               req.Email,
		"phone":               req.Phone,
		"type":                "route",
		"reference_id":        req.ReferenceID,
		"legal_business_name": req.LegalName,
		"business_type":       req.BusinessType,
		"contact_name":        req.ContactName,
		"profile": map[string]string{
			"category":    req.Category,
			"subcategory": req.Subcategory,
		},
	}
	var out rzpAccount
	if err := g.do(ctx, "create_account", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Post("/v2/accounts")
	}); err != nil {
		return nil, err
	}
	return &adapter.LinkedAccount{ID: out.ID, Status: out.Status, OnboardingLink: out.OnboardingLink}, nil
}

// do runs one call, records its latency and maps failures onto domain.ErrGateway.
func (g *RazorpayGateway) do(ctx context.Context, op string, call func(r *resty.Request) (*resty.Response, error)) error {
	start := time.Now()
	var apiErr rzpError
	resp, err := call(g.client.R().SetContext(ctx).SetError(&apiErr))
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if isTimeout(ctx, err) {
			metrics.ObserveGatewayCall(op, "timeout", elapsed)
			g.log.Warn().Str("op", op).Dur("elapsed", time.Since(start)).Msg("gateway call timed out")
			return fmt.Errorf("%w: %s: %v", domain.ErrGatewayTimeout, op, err)
		}
		metrics.ObserveGatewayCall(op, "error", elapsed)
		g.log.Error().Err(err).Str("op", op).Msg("gateway call failed")
		return fmt.Errorf("%w: %s: %v", domain.ErrGateway, op, err)
	}
	if resp.IsError() {
		metrics.ObserveGatewayCall(op, "error", elapsed)
		g.log.Warn().
			Str("op", op).
			Int("status", resp.StatusCode()).
			Str("code", apiErr.Error.Code).
			Str("reason", apiErr.Error.Reason).
			Msg("gateway rejected request")
		desc := apiErr.Error.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrGateway, op, desc)
	}
	metrics.ObserveGatewayCall(op, "ok", elapsed)
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
