package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
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
	_ WebhookUseCase       = (*webhookUC)(nil)
	_ portuc.EventReplayer = (*webhookUC)(nil)
)

// WebhookVerifier checks the signature of a raw webhook body.
type WebhookVerifier interface {
	VerifyWebhook(rawBody []byte, signature string) bool
}

type WebhookUseCase interface {
	// HandleEvent verifies, logs and applies one gateway delivery.
	// deliveryID is the gateway's per-event header id, if it sent one.
	HandleEvent(ctx context.Context, rawBody []byte, signature, deliveryID string) (*WebhookAck, error)
	Replay(ctx context.Context, eventID string) error
}

type WebhookAck struct {
	EventID   string
	EventType string
	Duplicate bool
	Note      string
}

type webhookUC struct {
	verifier   WebhookVerifier
	events     repository.WebhookEventRepository
	merchants  repository.MerchantAccountRepository
	payments   repository.PaymentRepository
	routes     repository.RouteTransactionRepository
	refunds    repository.RefundRepository
	activation VerificationUseCase
	tm         repository.TransactionManager
	now        func() time.Time
	log        *zerolog.Logger
}

func NewWebhookUseCase(
	verifier WebhookVerifier,
	events repository.WebhookEventRepository,
	merchants repository.MerchantAccountRepository,
	payments repository.PaymentRepository,
	routes repository.RouteTransactionRepository,
	refunds repository.RefundRepository,
	activation VerificationUseCase,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "WebhookUseCase").Logger()
	return &webhookUC{
		verifier:   verifier,
		events:     events,
		merchants:  merchants,
		payments:   payments,
		routes:     routes,
		refunds:    refunds,
		activation: activation,
		tm:         tm,
		now:        time.Now,
		log:        &l,
	}
}

// -----------------------------
// Event envelope
// -----------------------------

type webhookEnvelope struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment  *struct{ Entity paymentEntity }  `json:"payment"`
		Transfer *struct{ Entity transferEntity } `json:"transfer"`
		Account  *struct{ Entity accountEntity }  `json:"account"`
		Refund   *struct{ Entity refundEntity }   `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Status           string        `json:"status"`
	Method           string        `json:"method"`
	Captured         bool          `json:"captured"`
	Notes            adapter.Notes `json:"notes"`
	ErrorCode        string        `json:"error_code"`
	ErrorDescription string        `json:"error_description"`
	CreatedAt        int64         `json:"created_at"`
}

type transferEntity struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Error     struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

type accountEntity struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

func (e *webhookEnvelope) accountID() string {
	if e.Payload.Account != nil && e.Payload.Account.Entity.ID != "" {
		return e.Payload.Account.Entity.ID
	}
	return e.AccountID
}

// entityID picks the entity the event type is about; the gateway resends the
// same entity id on every redelivery.
func (e *webhookEnvelope) entityID() string {
	switch eventFamily(e.Event) {
	case "account":
		return e.accountID()
	case "transfer":
		if e.Payload.Transfer != nil {
			return e.Payload.Transfer.Entity.ID
		}
	case "payment":
		if e.Payload.Payment != nil {
			return e.Payload.Payment.Entity.ID
		}
	case "refund":
		if e.Payload.Refund != nil {
			return e.Payload.Refund.Entity.ID
		}
	}
	switch {
	case e.Payload.Payment != nil && e.Payload.Payment.Entity.ID != "":
		return e.Payload.Payment.Entity.ID
	case e.Payload.Transfer != nil && e.Payload.Transfer.Entity.ID != "":
		return e.Payload.Transfer.Entity.ID
	case e.Payload.Refund != nil && e.Payload.Refund.Entity.ID != "":
		return e.Payload.Refund.Entity.ID
	}
	return e.accountID()
}

func eventFamily(eventType string) string {
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			return eventType[:i]
		}
	}
	return eventType
}

// EventIdentity derives the idempotency key of a delivery. The gateway's delivery id
// wins; otherwise the entity id, qualified by the envelope timestamp so a later
// re-occurrence (activated, suspended, activated again) is not mistaken for a replay.
// Only when neither exists is a synthetic id minted.
func EventIdentity(deliveryID, entityID string, createdAt int64) (id string, synthetic bool) {
	switch {
	case deliveryID != "":
		return deliveryID, false
	case entityID != "" && createdAt > 0:
		return entityID + "@" + strconv.FormatInt(createdAt, 10), false
	case entityID != "":
		return entityID, false
	default:
		return "synthetic_" + ulid.Make().String(), true
	}
}

// -----------------------------
// Handling
// -----------------------------

func (u *webhookUC) HandleEvent(ctx context.Context, rawBody []byte, signature, deliveryID string) (*WebhookAck, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "WebhookUC.HandleEvent")()

	if !u.verifier.VerifyWebhook(rawBody, signature) {
		metrics.IncWebhook("", "rejected")
		metrics.IncSecurityEvent("invalid_signature", "webhook")
		log.Warn().Str("security_event", "invalid_signature").Int("body_len", len(rawBody)).Msg("webhook signature rejected")
		return nil, domain.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil || env.Event == "" {
		metrics.IncWebhook("", "rejected")
		log.Warn().Err(err).Msg("signed webhook body is not a gateway event")
		return nil, domain.Validationf("malformed event body")
	}

	eventID, synthetic := EventIdentity(deliveryID, env.entityID(), env.CreatedAt)
	if synthetic {
		log.Warn().Str("event", env.Event).Str("event_id", eventID).Msg("event carries no entity id; idempotence not guaranteed")
	}
	evt := &model.WebhookEvent{
		ID:                uuid.NewString(),
		EventType:         env.Event,
		EventID:           eventID,
		Synthetic:         synthetic,
		ExternalAccountID: env.accountID(),
		Payload:           append([]byte(nil), rawBody...),
		CreatedAt:         u.now(),
	}

	// Logged before dispatch and outside the dispatch transaction so it survives a crash.
	created, stored, err := u.events.CreateIfNotExists(ctx, repository.NoTX, evt)
	if err != nil {
		metrics.IncWebhook(env.Event, "failed")
		log.Error().Err(err).Str("event", env.Event).Str("event_id", eventID).Msg("could not log webhook event")
		return nil, asPersistence(err)
	}
	ack := &WebhookAck{EventID: stored.EventID, EventType: stored.EventType}
	if !created && stored.Processed {
		metrics.IncWebhook(env.Event, "duplicate")
		log.Info().Str("event", env.Event).Str("event_id", eventID).Msg("duplicate event acknowledged")
		ack.Duplicate = true
		ack.Note = stored.Note
		return ack, nil
	}

	note, err := u.process(ctx, log, stored, &env)
	if err != nil {
		return nil, err
	}
	ack.Note = note
	return ack, nil
}

// Replay re-dispatches a logged event that is still unprocessed.
func (u *webhookUC) Replay(ctx context.Context, eventID string) error {
	log := logging.With(ctx, u.log)
	stored, err := u.events.FindByID(ctx, repository.NoTX, eventID)
	if err != nil {
		return err
	}
	if stored.Processed {
		return nil
	}
	var env webhookEnvelope
	if err := json.Unmarshal(stored.Payload, &env); err != nil {
		// a stored payload that no longer parses will never succeed
		return u.events.MarkProcessed(ctx, repository.NoTX, stored.ID, u.now(), "unparseable payload")
	}
	_, err = u.process(ctx, log, stored, &env)
	return err
}

func (u *webhookUC) process(ctx context.Context, log *zerolog.Logger, stored *model.WebhookEvent, env *webhookEnvelope) (string, error) {
	elog := log.With().Str("event", env.Event).Str("event_id", stored.EventID).Logger()

	note, err := u.dispatch(ctx, &elog, env)
	if err != nil {
		metrics.IncWebhook(env.Event, "failed")
		elog.Error().Err(err).Msg("webhook processing failed; gateway will retry")
		if merr := u.events.MarkFailed(ctx, repository.NoTX, stored.ID, err.Error()); merr != nil {
			elog.Error().Err(merr).Msg("could not record processing error")
		}
		return "", err
	}

	if err := u.events.MarkProcessed(ctx, repository.NoTX, stored.ID, u.now(), note); err != nil {
		metrics.IncWebhook(env.Event, "failed")
		elog.Error().Err(err).Msg("could not mark event processed")
		return "", asPersistence(err)
	}
	outcome := "processed"
	if note != "" {
		outcome = "ignored"
	}
	metrics.IncWebhook(env.Event, outcome)
	elog.Info().Str("note", note).Msg("webhook event applied")
	return note, nil
}

// dispatch applies the event. A non-empty note means it was acknowledged
// without effect; an error leaves the event unprocessed for redelivery.
func (u *webhookUC) dispatch(ctx context.Context, log *zerolog.Logger, env *webhookEnvelope) (string, error) {
	switch env.Event {
	case model.EventAccountActivated:
		return u.applyAccountStatus(ctx, log, env.accountID(), model.AccountStatusActivated)
	case model.EventAccountNeedsClarification:
		return u.applyAccountStatus(ctx, log, env.accountID(), model.AccountStatusNeedsClarification)
	case model.EventAccountSuspended:
		return u.applyAccountStatus(ctx, log, env.accountID(), model.AccountStatusSuspended)
	case model.EventAccountRejected:
		return u.applyAccountStatus(ctx, log, env.accountID(), model.AccountStatusRejected)

	case model.EventTransferProcessing, model.EventTransferProcessed, model.EventTransferFailed:
		if env.Payload.Transfer == nil {
			return "missing transfer entity", nil
		}
		return u.applyTransfer(ctx, log, env.Event, &env.Payload.Transfer.Entity)

	case model.EventPaymentCaptured:
		if env.Payload.Payment == nil {
			return "missing payment entity", nil
		}
		return u.applyCaptured(ctx, log, &env.Payload.Payment.Entity)
	case model.EventPaymentFailed:
		if env.Payload.Payment == nil {
			return "missing payment entity", nil
		}
		return u.applyPaymentFailed(ctx, log, &env.Payload.Payment.Entity)

	case model.EventRefundCreated, model.EventRefundProcessed:
		if env.Payload.Refund == nil {
			return "missing refund entity", nil
		}
		return u.applyRefund(ctx, env.Event, &env.Payload.Refund.Entity)
	}

	log.Info().Msg("unhandled event type acknowledged")
	return "unhandled event type", nil
}

func (u *webhookUC) applyAccountStatus(ctx context.Context, log *zerolog.Logger, accountID string, to model.AccountStatus) (string, error) {
	if accountID == "" {
		return "missing account id", nil
	}
	var note string
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := u.merchants.FindByExternalID(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				note = "unknown account"
				return nil
			}
			return err
		}
		if !m.AccountStatus.CanTransition(to) {
			note = fmt.Sprintf("ignored transition %s -> %s", m.AccountStatus, to)
			log.Warn().Str("account_id", accountID).Str("from", string(m.AccountStatus)).Str("to", string(to)).Msg("out-of-order account event")
			return nil
		}
		_, err = u.merchants.UpdateStatusByExternalID(ctx, tx, accountID, to, to == model.AccountStatusActivated)
		return err
	})
	if err != nil {
		return "", asPersistence(err)
	}
	return note, nil
}

func (u *webhookUC) applyTransfer(ctx context.Context, log *zerolog.Logger, eventType string, t *transferEntity) (string, error) {
	if t.ID == "" {
		return "missing transfer id", nil
	}
	var to model.TransferStatus
	switch eventType {
	case model.EventTransferProcessing:
		to = model.TransferStatusProcessing
	case model.EventTransferProcessed:
		to = model.TransferStatusTransferred
	default:
		to = model.TransferStatusFailed
	}
	reason := ""
	if to == model.TransferStatusFailed {
		reason = firstNonEmpty(t.Error.Description, t.Error.Reason, t.Error.Code, "transfer failed")
	}

	var note string
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		rt, err := u.routes.FindByTransferID(ctx, tx, t.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				note = "unknown transfer"
				return nil
			}
			return err
		}
		if !rt.TransferStatus.CanTransition(to) {
			note = fmt.Sprintf("ignored transition %s -> %s", rt.TransferStatus, to)
			return nil
		}
		_, err = u.routes.UpdateTransferStatus(ctx, tx, t.ID, to, reason, u.now())
		return err
	})
	if err != nil {
		return "", asPersistence(err)
	}
	if to == model.TransferStatusFailed && note == "" {
		log.Warn().Str("transfer_id", t.ID).Str("reason", reason).Msg("transfer to merchant failed")
	}
	return note, nil
}

func (u *webhookUC) applyCaptured(ctx context.Context, log *zerolog.Logger, p *paymentEntity) (string, error) {
	userID, planID := p.Notes["user_id"], p.Notes["plan_id"]
	if userID == "" || planID == "" {
		return "payment has no order notes", nil
	}
	gp := p.toGateway()
	_, err := u.activation.ActivateCaptured(ctx, gp, userID, planID)
	if err == nil {
		return "", nil
	}
	// Persistence and gateway failures are worth a redelivery; the rest never will be.
	if errors.Is(err, domain.ErrPersistence) || errors.Is(err, domain.ErrGateway) {
		return "", err
	}
	log.Warn().Err(err).Str("payment_id", p.ID).Msg("captured payment not activated from webhook")
	return "not activated: " + err.Error(), nil
}

func (u *webhookUC) applyPaymentFailed(ctx context.Context, log *zerolog.Logger, p *paymentEntity) (string, error) {
	if p.ID == "" {
		return "missing payment id", nil
	}
	reason := firstNonEmpty(p.ErrorDescription, p.ErrorCode, "payment failed")

	var note string
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.payments.FindByExternalID(ctx, tx, p.ID)
		switch {
		case err == nil && existing.Status == model.PaymentStatusSuccess:
			note = "payment already captured"
			log.Warn().Str("payment_id", p.ID).Msg("failure event for a captured payment ignored")
			return nil
		case err == nil:
			_, err = u.payments.MarkFailedByExternalID(ctx, tx, p.ID, reason)
			return err
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		userID, planID := p.Notes["user_id"], p.Notes["plan_id"]
		if userID == "" || planID == "" {
			note = "unknown payment"
			return nil
		}
		now := u.now()
		failed := &model.Payment{
			ID:                uuid.NewString(),
			UserID:            userID,
			PlanID:            planID,
			ExternalOrderID:   p.OrderID,
			ExternalPaymentID: p.ID,
			Amount:            p.Amount,
			Currency:          p.Currency,
			Method:            p.Method,
			Status:            model.PaymentStatusFailed,
			FailureReason:     reason,
			PaymentDate:       unixOr(p.CreatedAt, now),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		_, err = u.payments.Insert(ctx, tx, failed)
		return err
	})
	if err != nil {
		return "", asPersistence(err)
	}
	return note, nil
}

func (u *webhookUC) applyRefund(ctx context.Context, eventType string, r *refundEntity) (string, error) {
	if r.ID == "" {
		return "missing refund id", nil
	}
	status := model.RefundStatusCreated
	if eventType == model.EventRefundProcessed {
		status = model.RefundStatusProcessed
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now()
		rr := &model.RefundRequest{
			ID:                uuid.NewString(),
			ExternalRefundID:  r.ID,
			ExternalPaymentID: r.PaymentID,
			Amount:            r.Amount,
			Currency:          r.Currency,
			Status:            status,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if p, err := u.payments.FindByExternalID(ctx, tx, r.PaymentID); err == nil {
			rr.PaymentID = &p.ID
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return u.refunds.Upsert(ctx, tx, rr)
	})
	if err != nil {
		return "", asPersistence(err)
	}
	return "", nil
}

func (p *paymentEntity) toGateway() *adapter.GatewayPayment {
	return &adapter.GatewayPayment{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		Method:    p.Method,
		Captured:  p.Captured,
		Notes:     p.Notes,
		CreatedAt: unixOr(p.CreatedAt, time.Time{}),
	}
}

func unixOr(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}

func asPersistence(err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
