package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/logging"
	"gym-payments/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

type OrderUseCase interface {
	// CreateOrder creates a gateway order for any plan. Merchant-owned plans are routed.
	CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error)
	// CreateRoutedOrder only accepts merchant-owned plans and reports the receiving gym.
	CreateRoutedOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error)
}

type CreateOrderInput struct {
	PlanID   string
	UserID   string // authenticated identity, never the request body
	Amount   int64  // client-declared, minor units
	Currency string
}

type OrderResult struct {
	OrderID      string
	Amount       int64
	Currency     string
	Receipt      string
	Routed       bool
	Split        *model.Split
	PlanName     string
	MerchantName string
}

type OrderOptions struct {
	Currency   string
	RateLimit  int // orders per window per user; 0 disables
	RateWindow time.Duration
}

type orderUC struct {
	plans     repository.SubscriptionPlanRepository
	users     repository.UserRepository
	gyms      repository.GymRepository
	merchants repository.MerchantAccountRepository
	gateway   adapter.PaymentGateway
	limiter   adapter.RateLimiter // optional
	receipts  *ReceiptGenerator
	opts      OrderOptions
	log       *zerolog.Logger
}

func NewOrderUseCase(
	plans repository.SubscriptionPlanRepository,
	users repository.UserRepository,
	gyms repository.GymRepository,
	merchants repository.MerchantAccountRepository,
	gateway adapter.PaymentGateway,
	limiter adapter.RateLimiter,
	receipts *ReceiptGenerator,
	opts OrderOptions,
	logger *zerolog.Logger,
) *orderUC {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if receipts == nil {
		receipts = NewReceiptGenerator(nil)
	}
	l := logger.With().Str("component", "OrderUseCase").Logger()
	return &orderUC{
		plans:     plans,
		users:     users,
		gyms:      gyms,
		merchants: merchants,
		gateway:   gateway,
		limiter:   limiter,
		receipts:  receipts,
		opts:      opts,
		log:       &l,
	}
}

func (u *orderUC) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	return u.create(ctx, in, false)
}

func (u *orderUC) CreateRoutedOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	return u.create(ctx, in, true)
}

func (u *orderUC) create(ctx context.Context, in CreateOrderInput, routedOnly bool) (*OrderResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "OrderUC.Create")()

	if err := u.validate(in); err != nil {
		metrics.IncOrderRejected("validation")
		return nil, err
	}
	if err := u.checkRate(ctx, in.UserID); err != nil {
		metrics.IncOrderRejected("rate_limited")
		return nil, err
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, in.PlanID)
	if err != nil || plan == nil || !plan.IsActive {
		metrics.IncOrderRejected("plan_not_found")
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.ErrPlanNotFound
	}

	expected := plan.AmountMinor()
	if diff := in.Amount - expected; diff > 1 || diff < -1 {
		metrics.IncOrderRejected("amount_mismatch")
		metrics.IncSecurityEvent("amount_mismatch", "order")
		log.Warn().
			Str("security_event", "amount_mismatch").
			Str("plan_id", plan.ID).
			Int64("declared", in.Amount).
			Int64("expected", expected).
			Msg("order amount does not match plan price")
		return nil, domain.ErrAmountMismatch
	}

	if routedOnly && !plan.IsMerchantOwned() {
		metrics.IncOrderRejected("validation")
		return nil, domain.Validationf("plan %s is not sold by a gym", plan.ID)
	}

	res := &OrderResult{
		Amount:   expected,
		Currency: u.opts.Currency,
		Receipt:  u.receipts.Next(in.UserID),
		PlanName: plan.Name,
	}
	req := adapter.OrderRequest{
		Amount:   expected,
		Currency: u.opts.Currency,
		Receipt:  res.Receipt,
		Notes: map[string]string{
			"user_id": in.UserID,
			"plan_id": plan.ID,
		},
	}

	if plan.IsMerchantOwned() {
		merchant, gymName, err := u.routedMerchant(ctx, log, in.UserID, plan)
		if err != nil {
			return nil, err
		}
		split := model.ComputeSplit(expected, merchant.CommissionPercentage)
		req.Notes["gym_id"] = *plan.GymID
		req.Transfer = &adapter.TransferRequest{
			Account:  merchant.ExternalID(),
			Amount:   split.MerchantAmount,
			Currency: u.opts.Currency,
			Notes: map[string]string{
				"plan_id":    plan.ID,
				"commission": fmt.Sprintf("%d", split.PlatformCommission),
			},
		}
		res.Routed = true
		res.Split = &split
		res.MerchantName = gymName
		if res.MerchantName == "" {
			res.MerchantName = merchant.BusinessName
		}
	}

	order, err := u.gateway.CreateOrder(ctx, req)
	if err != nil {
		metrics.IncOrderRejected("gateway")
		log.Error().Err(err).Str("plan_id", plan.ID).Bool("routed", res.Routed).Msg("gateway order creation failed")
		return nil, asGatewayError(err)
	}
	res.OrderID = order.ID
	if order.Currency != "" {
		res.Currency = order.Currency
	}

	metrics.IncOrderCreated(res.Routed)
	log.Info().
		Str("order_id", res.OrderID).
		Str("plan_id", plan.ID).
		Int64("amount", res.Amount).
		Bool("routed", res.Routed).
		Msg("order created")
	return res, nil
}

// routedMerchant re-derives the gym association server-side and returns the
// merchant that will receive the transfer.
func (u *orderUC) routedMerchant(ctx context.Context, log *zerolog.Logger, userID string, plan *model.SubscriptionPlan) (*model.MerchantAccount, string, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrUserNotFound
		}
		return nil, "", err
	}
	if user.GymID == nil || *user.GymID != *plan.GymID {
		metrics.IncOrderRejected("cross_tenant")
		metrics.IncSecurityEvent("cross_tenant", "order")
		log.Warn().
			Str("security_event", "cross_tenant").
			Str("plan_id", plan.ID).
			Str("plan_gym_id", *plan.GymID).
			Msg("user ordered a plan from another gym")
		return nil, "", domain.ErrCrossTenantViolation
	}

	merchant, err := u.merchants.FindByGymID(ctx, repository.NoTX, *plan.GymID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}
	if !merchant.CanReceiveTransfers() {
		metrics.IncOrderRejected("merchant_not_onboarded")
		ev := log.Info().Str("gym_id", *plan.GymID)
		if merchant != nil {
			ev = ev.Str("merchant_id", merchant.ID).Str("account_status", string(merchant.AccountStatus))
		}
		ev.Msg("routed order refused: merchant not onboarded")
		return nil, "", domain.ErrMerchantNotOnboarded
	}

	var gymName string
	if g, err := u.gyms.FindByID(ctx, repository.NoTX, *plan.GymID); err == nil && g != nil {
		gymName = g.Name
	}
	return merchant, gymName, nil
}

func (u *orderUC) validate(in CreateOrderInput) error {
	var missing []string
	if strings.TrimSpace(in.PlanID) == "" {
		missing = append(missing, "plan_id")
	}
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		return domain.Validationf("missing %s", strings.Join(missing, ", "))
	}
	if in.Amount <= 0 {
		return domain.Validationf("amount must be a positive number of minor units")
	}
	if in.Currency != "" && !strings.EqualFold(in.Currency, u.opts.Currency) {
		return domain.Validationf("unsupported currency %q", in.Currency)
	}
	return nil
}

func (u *orderUC) checkRate(ctx context.Context, userID string) error {
	if u.limiter == nil || u.opts.RateLimit <= 0 {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, "rate_limit:orders:"+userID, u.opts.RateLimit, u.opts.RateWindow)
	if err != nil {
		// limiter outage must not block payments
		u.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

// asGatewayError classifies adapter failures so handlers map them to 502.
func asGatewayError(err error) error {
	if errors.Is(err, domain.ErrGateway) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrGateway, err)
}
