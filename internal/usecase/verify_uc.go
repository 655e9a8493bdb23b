package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/domain/ports/repository"
	portuc "gym-payments/internal/domain/ports/usecase"
	"gym-payments/internal/infra/logging"
	"gym-payments/internal/infra/metrics"
)

var (
	_ VerificationUseCase        = (*verifyUC)(nil)
	_ portuc.ActivationCompleter = (*verifyUC)(nil)
)

// SignatureVerifier checks a checkout callback signature over "{order_id}|{payment_id}".
type SignatureVerifier interface {
	VerifyPayment(orderID, paymentID, signature string) bool
}

type VerificationUseCase interface {
	VerifyAndActivate(ctx context.Context, in VerifyInput) (*Activation, error)
	// ActivateCaptured is the webhook backstop: gp was delivered in a signed event.
	ActivateCaptured(ctx context.Context, gp *adapter.GatewayPayment, userID, planID string) (*Activation, error)
	CompleteActivation(ctx context.Context, paymentID string) (*model.UserSubscription, error)
}

type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
	PlanID    string
	UserID    string
}

// Activation is the outcome of a verified payment. Duplicate is true when an
// earlier call (client retry, webhook or reconciler) had already activated it.
type Activation struct {
	Subscription *model.UserSubscription
	Payment      *model.Payment
	Route        *model.RouteTransaction
	Duplicate    bool
}

type VerifyOptions struct {
	LockTTL time.Duration
	Now     func() time.Time
}

type verifyUC struct {
	verifier  SignatureVerifier
	gateway   adapter.PaymentGateway
	plans     repository.SubscriptionPlanRepository
	users     repository.UserRepository
	merchants repository.MerchantAccountRepository
	payments  repository.PaymentRepository
	routes    repository.RouteTransactionRepository
	subs      repository.SubscriptionRepository
	tm        repository.TransactionManager
	locker    adapter.Locker // optional
	opts      VerifyOptions
	log       *zerolog.Logger
}

func NewVerificationUseCase(
	verifier SignatureVerifier,
	gateway adapter.PaymentGateway,
	plans repository.SubscriptionPlanRepository,
	users repository.UserRepository,
	merchants repository.MerchantAccountRepository,
	payments repository.PaymentRepository,
	routes repository.RouteTransactionRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	opts VerifyOptions,
	logger *zerolog.Logger,
) *verifyUC {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "VerificationUseCase").Logger()
	return &verifyUC{
		verifier:  verifier,
		gateway:   gateway,
		plans:     plans,
		users:     users,
		merchants: merchants,
		payments:  payments,
		routes:    routes,
		subs:      subs,
		tm:        tm,
		locker:    locker,
		opts:      opts,
		log:       &l,
	}
}

func (u *verifyUC) VerifyAndActivate(ctx context.Context, in VerifyInput) (act *Activation, err error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "VerifyUC.VerifyAndActivate")()
	start := time.Now()
	defer func() { observeVerify(act, err, "client", start) }()

	if err := validateVerifyInput(in); err != nil {
		return nil, err
	}
	if !u.verifier.VerifyPayment(in.OrderID, in.PaymentID, in.Signature) {
		metrics.IncSecurityEvent("invalid_signature", "verify")
		log.Warn().
			Str("security_event", "invalid_signature").
			Str("order_id", in.OrderID).
			Str("payment_id", in.PaymentID).
			Msg("payment signature rejected")
		return nil, domain.ErrInvalidSignature
	}

	// A retried call must not hit the gateway again or race a second activation.
	if existing, err := u.existingActivation(ctx, in.PaymentID, in.UserID); err != nil || existing != nil {
		return existing, err
	}

	if u.locker != nil {
		key := "verify:" + in.PaymentID
		if token, lerr := u.locker.TryLock(ctx, key, u.opts.LockTTL); lerr == nil {
			defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), key, token) }()
		} else {
			log.Debug().Err(lerr).Str("payment_id", in.PaymentID).Msg("verify lock not acquired; relying on unique constraint")
		}
	}

	gp, err := u.gateway.FetchPayment(ctx, in.PaymentID)
	if err != nil {
		log.Error().Err(err).Str("payment_id", in.PaymentID).Msg("gateway payment fetch failed")
		return nil, asGatewayError(err)
	}
	return u.activate(ctx, log, gp, in.OrderID, in.Signature, in.UserID, in.PlanID)
}

func (u *verifyUC) ActivateCaptured(ctx context.Context, gp *adapter.GatewayPayment, userID, planID string) (act *Activation, err error) {
	log := logging.With(ctx, u.log)
	start := time.Now()
	defer func() { observeVerify(act, err, "webhook", start) }()

	if gp == nil || gp.ID == "" || userID == "" || planID == "" {
		return nil, domain.Validationf("captured payment is missing payment id, user_id or plan_id")
	}
	return u.activate(ctx, log, gp, gp.OrderID, "", userID, planID)
}

// CompleteActivation is the compensating path for a Payment row that has no
// Subscription. It re-reads the gateway and runs the same activation transaction.
func (u *verifyUC) CompleteActivation(ctx context.Context, paymentID string) (sub *model.UserSubscription, err error) {
	log := logging.With(ctx, u.log).With().Str("payment_id", paymentID).Logger()
	var act *Activation
	start := time.Now()
	defer func() { observeVerify(act, err, "reconciler", start) }()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if s, err := u.subs.FindByPaymentID(ctx, repository.NoTX, p.ID); err == nil && s != nil {
		act = &Activation{Subscription: s, Payment: p, Duplicate: true}
		return s, nil
	}
	gp, err := u.gateway.FetchPayment(ctx, p.ExternalPaymentID)
	if err != nil {
		return nil, asGatewayError(err)
	}
	act, err = u.activate(ctx, &log, gp, p.ExternalOrderID, p.Signature, p.UserID, p.PlanID)
	if err != nil {
		return nil, err
	}
	return act.Subscription, nil
}

func (u *verifyUC) existingActivation(ctx context.Context, externalPaymentID, userID string) (*Activation, error) {
	p, err := u.payments.FindByExternalID(ctx, repository.NoTX, externalPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden
	}
	s, err := u.subs.FindByPaymentID(ctx, repository.NoTX, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// recorded without subscription: let the full path complete it
			return nil, nil
		}
		return nil, err
	}
	act := &Activation{Subscription: s, Payment: p, Duplicate: true}
	if rt, err := u.routes.FindByPaymentID(ctx, repository.NoTX, p.ID); err == nil {
		act.Route = rt
	}
	return act, nil
}

func (u *verifyUC) activate(ctx context.Context, log *zerolog.Logger, gp *adapter.GatewayPayment, orderID, signature, userID, planID string) (*Activation, error) {
	if !gp.IsCaptured() {
		log.Info().Str("payment_id", gp.ID).Str("gateway_status", gp.Status).Msg("payment not captured")
		return nil, domain.ErrPaymentNotCaptured
	}
	if orderID != "" && gp.OrderID != "" && gp.OrderID != orderID {
		metrics.IncSecurityEvent("order_mismatch", "verify")
		log.Warn().
			Str("security_event", "order_mismatch").
			Str("payment_id", gp.ID).
			Str("claimed_order_id", orderID).
			Str("gateway_order_id", gp.OrderID).
			Msg("payment belongs to a different order")
		return nil, domain.Validationf("payment %s does not belong to order %s", gp.ID, orderID)
	}
	// Orders carry the payer and plan in their notes; those win over the caller.
	if payer := gp.Notes["user_id"]; payer != "" && payer != userID {
		metrics.IncSecurityEvent("payer_mismatch", "verify")
		log.Warn().
			Str("security_event", "payer_mismatch").
			Str("payment_id", gp.ID).
			Str("claimed_user_id", userID).
			Str("ordered_by", payer).
			Msg("payment was ordered by another user")
		return nil, domain.ErrForbidden
	}
	if ordered := gp.Notes["plan_id"]; ordered != "" && ordered != planID {
		metrics.IncSecurityEvent("plan_mismatch", "verify")
		log.Warn().
			Str("security_event", "plan_mismatch").
			Str("payment_id", gp.ID).
			Str("claimed_plan_id", planID).
			Str("ordered_plan_id", ordered).
			Msg("payment was ordered for another plan")
		return nil, domain.ErrPlanMismatch
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil || plan.IsZero() {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.ErrPlanNotFound
	}
	if diff := gp.Amount - plan.AmountMinor(); diff > 1 || diff < -1 {
		metrics.IncSecurityEvent("amount_mismatch", "verify")
		log.Warn().
			Str("security_event", "amount_mismatch").
			Str("payment_id", gp.ID).
			Str("plan_id", plan.ID).
			Int64("paid", gp.Amount).
			Int64("expected", plan.AmountMinor()).
			Msg("captured amount does not match plan price")
		return nil, domain.ErrAmountMismatch
	}

	now := u.opts.Now()
	paidAt := gp.CreatedAt
	if paidAt.IsZero() {
		paidAt = now
	}
	payment := &model.Payment{
		ID:                uuid.NewString(),
		UserID:            userID,
		PlanID:            plan.ID,
		ExternalOrderID:   gp.OrderID,
		ExternalPaymentID: gp.ID,
		Signature:         signature,
		Amount:            gp.Amount,
		Currency:          gp.Currency,
		Method:            gp.Method,
		Status:            model.PaymentStatusSuccess,
		PaymentDate:       paidAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if payment.ExternalOrderID == "" {
		payment.ExternalOrderID = orderID
	}

	var route *model.RouteTransaction
	if plan.IsMerchantOwned() {
		route, err = u.buildRoute(ctx, log, gp, plan, userID, payment.ID, now)
		if err != nil {
			return nil, err
		}
	}

	sub, err := model.NewActivatedSubscription(uuid.NewString(), userID, plan, payment.ID, gp.ID, now)
	if err != nil {
		return nil, err
	}

	act := &Activation{Subscription: sub, Payment: payment, Route: route}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.persist(ctx, tx, act)
	})
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		metrics.IncNeedsReconciliation()
		log.Error().Err(err).
			Bool("needs_reconciliation", true).
			Str("payment_id", gp.ID).
			Str("order_id", gp.OrderID).
			Str("user_id", userID).
			Str("plan_id", plan.ID).
			Int64("amount", gp.Amount).
			Msg("captured payment could not be recorded")
		if errors.Is(err, domain.ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if act.Duplicate {
		log.Info().Str("payment_id", gp.ID).Str("subscription_id", act.Subscription.ID).Msg("payment already activated")
		return act, nil
	}
	var merchantShare, platformShare int64
	if act.Route != nil {
		merchantShare, platformShare = act.Route.MerchantAmount, act.Route.PlatformCommission
	}
	metrics.AddRevenue(payment.Currency, payment.Amount, merchantShare, platformShare)
	log.Info().
		Str("payment_id", gp.ID).
		Str("subscription_id", act.Subscription.ID).
		Time("end_date", act.Subscription.EndDate).
		Bool("routed", act.Route != nil).
		Msg("subscription activated")
	return act, nil
}

// persist runs inside one transaction. The payment insert is the serialization
// point: losing the race means reading back the winner's rows.
func (u *verifyUC) persist(ctx context.Context, tx repository.Tx, act *Activation) error {
	inserted, err := u.payments.Insert(ctx, tx, act.Payment)
	if err != nil {
		return err
	}
	insertRoute := act.Route != nil
	if !inserted {
		existing, err := u.payments.FindByExternalID(ctx, tx, act.Payment.ExternalPaymentID)
		if err != nil {
			return err
		}
		if existing.UserID != act.Payment.UserID {
			return domain.ErrForbidden
		}
		var existingRoute *model.RouteTransaction
		if rt, err := u.routes.FindByPaymentID(ctx, tx, existing.ID); err == nil {
			existingRoute = rt
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		s, err := u.subs.FindByPaymentID(ctx, tx, existing.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		activated := err == nil
		if !activated && existing.PlanID != act.Payment.PlanID {
			return domain.ErrPlanMismatch
		}

		if existing.Status != model.PaymentStatusSuccess {
			// a failure event arrived before the late capture
			if _, err := u.payments.MarkSucceededByExternalID(ctx, tx, act.Payment); err != nil {
				return err
			}
			existing = promoted(existing, act.Payment)
		}
		act.Payment = existing
		if activated {
			act.Subscription, act.Route, act.Duplicate = s, existingRoute, true
			return nil
		}

		// payment recorded earlier without a subscription: complete it
		act.Subscription.PaymentID = existing.ID
		if existingRoute != nil {
			act.Route, insertRoute = existingRoute, false
		} else if act.Route != nil {
			act.Route.PaymentID = existing.ID
		}
	}

	if insertRoute {
		if err := u.routes.Insert(ctx, tx, act.Route); err != nil {
			return err
		}
	}
	return u.subs.Save(ctx, tx, act.Subscription)
}

// promoted is the stored row after MarkSucceededByExternalID applied paid to it.
func promoted(stored, paid *model.Payment) *model.Payment {
	p := *stored
	p.Status = model.PaymentStatusSuccess
	p.FailureReason = ""
	p.Amount, p.Currency, p.Method = paid.Amount, paid.Currency, paid.Method
	p.PaymentDate, p.UpdatedAt = paid.PaymentDate, paid.UpdatedAt
	if paid.Signature != "" {
		p.Signature = paid.Signature
	}
	return &p
}

// buildRoute fails closed when the gateway has no transfer for a routed payment.
func (u *verifyUC) buildRoute(ctx context.Context, log *zerolog.Logger, gp *adapter.GatewayPayment, plan *model.SubscriptionPlan, userID, paymentID string, now time.Time) (*model.RouteTransaction, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if user.GymID == nil || *user.GymID != *plan.GymID {
		metrics.IncSecurityEvent("cross_tenant", "verify")
		log.Warn().
			Str("security_event", "cross_tenant").
			Str("payment_id", gp.ID).
			Str("plan_id", plan.ID).
			Msg("verified payment for a plan from another gym")
		return nil, domain.ErrCrossTenantViolation
	}

	merchant, err := u.merchants.FindByGymID(ctx, repository.NoTX, *plan.GymID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMerchantNotFound
		}
		return nil, err
	}

	transfers, err := u.gateway.FetchTransfers(ctx, gp.ID)
	if err != nil {
		return nil, asGatewayError(err)
	}
	if len(transfers) == 0 {
		log.Error().Str("payment_id", gp.ID).Str("merchant_id", merchant.ID).Msg("routed payment has no transfer")
		return nil, domain.ErrTransferNotFound
	}

	split := model.ComputeSplit(gp.Amount, merchant.CommissionPercentage)
	tr := transfers[0]
	for _, t := range transfers {
		if t.Recipient == merchant.ExternalID() {
			tr = t
			break
		}
	}
	if tr.Recipient != merchant.ExternalID() {
		metrics.IncSplitMismatch("recipient")
		log.Warn().
			Str("payment_id", gp.ID).
			Str("transfer_id", tr.ID).
			Str("expected_recipient", merchant.ExternalID()).
			Str("actual_recipient", tr.Recipient).
			Msg("transfer recipient differs from merchant account")
	}
	if tr.Amount != split.MerchantAmount {
		metrics.IncSplitMismatch("amount")
		log.Warn().
			Str("payment_id", gp.ID).
			Str("transfer_id", tr.ID).
			Int64("expected_amount", split.MerchantAmount).
			Int64("actual_amount", tr.Amount).
			Msg("transfer amount differs from expected split")
	}

	status := TransferStatusFromGateway(tr.Status)
	rt := &model.RouteTransaction{
		ID:                 uuid.NewString(),
		PaymentID:          paymentID,
		MerchantAccountID:  merchant.ID,
		ExternalAccountID:  merchant.ExternalID(),
		TotalAmount:        split.Total,
		MerchantAmount:     split.MerchantAmount,
		PlatformCommission: split.PlatformCommission,
		ExternalTransferID: tr.ID,
		TransferStatus:     status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == model.TransferStatusTransferred {
		at := now
		rt.TransferredAt = &at
	}
	return rt, nil
}

// TransferStatusFromGateway maps gateway transfer states onto the local lifecycle.
func TransferStatusFromGateway(s string) model.TransferStatus {
	switch strings.ToLower(s) {
	case "processed", "settled":
		return model.TransferStatusTransferred
	case "failed", "reversed":
		return model.TransferStatusFailed
	case "pending", "processing":
		return model.TransferStatusProcessing
	default:
		return model.TransferStatusCreated
	}
}

func validateVerifyInput(in VerifyInput) error {
	fields := []struct{ name, value string }{
		{"order_id", in.OrderID},
		{"payment_id", in.PaymentID},
		{"signature", in.Signature},
		{"plan_id", in.PlanID},
		{"user_id", in.UserID},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return domain.Validationf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func observeVerify(act *Activation, err error, source string, start time.Time) {
	result := "activated"
	switch {
	case err != nil:
		result = "fail"
	case act != nil && act.Duplicate:
		result = "duplicate"
	}
	metrics.IncVerify(result, source)
	metrics.ObserveVerify(result, time.Since(start).Seconds())
}
