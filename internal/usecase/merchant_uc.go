package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/logging"
	"gym-payments/internal/infra/metrics"
)

var _ MerchantUseCase = (*merchantUC)(nil)

type MerchantUseCase interface {
	CreateMerchantAccount(ctx context.Context, in OnboardingInput) (*OnboardingResult, error)
}

// OnboardingInput is validated with struct tags; "phone" is registered below.
type OnboardingInput struct {
	UserID       string `validate:"required"`
	BusinessName string `validate:"required,min=2,max=200"`
	ContactName  string `validate:"required,min=2,max=100"`
	Email        string `validate:"required,email"`
	Phone        string `validate:"required,phone"`
	BusinessType string `validate:"required,oneof=individual proprietorship partnership private_limited public_limited llp trust society ngo"`
	Category     string `validate:"omitempty,max=64"`
	Subcategory  string `validate:"omitempty,max=64"`
}

type OnboardingResult struct {
	MerchantAccountID string
	ExternalAccountID string
	OnboardingLink    string
	Status            model.AccountStatus
}

type MerchantOptions struct {
	DefaultCommission decimal.Decimal
	// OnboardingURL is used when the gateway returns no hosted link; "{account_id}" is substituted.
	OnboardingURL   string
	DefaultCategory string
	Dev             bool
}

type merchantUC struct {
	users     repository.UserRepository
	merchants repository.MerchantAccountRepository
	gateway   adapter.PaymentGateway
	tm        repository.TransactionManager
	validate  *validator.Validate
	opts      MerchantOptions
	log       *zerolog.Logger
}

var phoneRe = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// NewValidator returns the validator shared by onboarding and the HTTP layer.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(normalizePhone(fl.Field().String()))
	})
	return v
}

func NewMerchantUseCase(
	users repository.UserRepository,
	merchants repository.MerchantAccountRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	opts MerchantOptions,
	logger *zerolog.Logger,
) *merchantUC {
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = "healthcare"
	}
	l := logger.With().Str("component", "MerchantUseCase").Logger()
	return &merchantUC{
		users:     users,
		merchants: merchants,
		gateway:   gateway,
		tm:        tm,
		validate:  NewValidator(),
		opts:      opts,
		log:       &l,
	}
}

func (u *merchantUC) CreateMerchantAccount(ctx context.Context, in OnboardingInput) (*OnboardingResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "MerchantUC.CreateMerchantAccount")()

	in.Phone = normalizePhone(in.Phone)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := u.validate.StructCtx(ctx, in); err != nil {
		metrics.IncOnboarding("fail")
		return nil, validationError(err)
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if user.Role != model.RoleGymOwner && user.Role != model.RoleAdmin {
		return nil, domain.ErrForbidden
	}

	existing, err := u.merchants.FindByUserID(ctx, repository.NoTX, in.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.ExternalID() != "" {
		metrics.IncOnboarding("exists")
		log.Info().Str("merchant_id", existing.ID).Str("account_id", existing.ExternalID()).Msg("merchant account already exists")
		return nil, &domain.AccountExistsError{
			MerchantAccountID: existing.ID,
			ExternalAccountID: existing.ExternalID(),
			Status:            string(existing.AccountStatus),
		}
	}

	linked, err := u.gateway.CreateLinkedAccount(ctx, adapter.LinkedAccountRequest{
		ReferenceID:  referenceID(in.UserID),
		Email:        in.Email,
		Phone:        in.Phone,
		LegalName:    in.BusinessName,
		BusinessType: in.BusinessType,
		ContactName:  in.ContactName,
		Category:     firstNonEmpty(in.Category, u.opts.DefaultCategory),
		Subcategory:  in.Subcategory,
	})
	if err != nil {
		metrics.IncOnboarding("fail")
		log.Error().Err(err).Str("email", logging.Redact(in.Email, u.opts.Dev)).Msg("gateway rejected linked account")
		return nil, asGatewayError(err)
	}

	status := accountStatusFromGateway(linked.Status)
	now := time.Now()
	extID := linked.ID
	m := &model.MerchantAccount{
		ID:                   uuid.NewString(),
		UserID:               in.UserID,
		ExternalAccountID:    &extID,
		AccountStatus:        status,
		CommissionPercentage: u.opts.DefaultCommission,
		IsActive:             true,
		OnboardingCompleted:  status == model.AccountStatusActivated,
		BusinessName:         in.BusinessName,
		BusinessType:         in.BusinessType,
		ContactName:          in.ContactName,
		Email:                in.Email,
		Phone:                in.Phone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.merchants.UpsertOnboarding(ctx, tx, m); err != nil {
			return err
		}
		return u.merchants.EnsureSettings(ctx, tx, model.DefaultMerchantSettings(m.ID))
	})
	if err != nil {
		metrics.IncOnboarding("fail")
		log.Error().Err(err).
			Bool("needs_reconciliation", true).
			Str("account_id", extID).
			Msg("linked account created at gateway but not stored")
		if errors.Is(err, domain.ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	link := linked.OnboardingLink
	if link == "" && u.opts.OnboardingURL != "" {
		link = strings.ReplaceAll(u.opts.OnboardingURL, "{account_id}", extID)
	}

	metrics.IncOnboarding("created")
	log.Info().Str("merchant_id", m.ID).Str("account_id", extID).Str("status", string(status)).Msg("merchant account onboarded")
	return &OnboardingResult{
		MerchantAccountID: m.ID,
		ExternalAccountID: extID,
		OnboardingLink:    link,
		Status:            status,
	}, nil
}

func accountStatusFromGateway(s string) model.AccountStatus {
	st := model.AccountStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() || st == model.AccountStatusNone {
		return model.AccountStatusCreated
	}
	return st
}

// validationError flattens validator output into a single user-facing message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Validationf("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", toSnake(fe.Field()), fe.Tag()))
	}
	return domain.Validationf("invalid fields: %s", strings.Join(fields, ", "))
}

func normalizePhone(p string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(p))
}

// referenceID fits the gateway's 20 character limit.
func referenceID(userID string) string {
	r := strings.ReplaceAll(userID, "-", "")
	if len(r) > 20 {
		r = r[:20]
	}
	return r
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
