package domain

import (
	"errors"
	"fmt"
)

var (
	// Classes. Handlers map these to HTTP status codes.
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("entity not found")
	ErrGateway      = errors.New("payment gateway error")
	ErrPersistence  = errors.New("persistence error")
	ErrRateLimited  = errors.New("too many requests")

	// Security-relevant rejections; always logged as security events.
	ErrAmountMismatch       = errors.New("amount does not match plan price")
	ErrCrossTenantViolation = errors.New("plan does not belong to the requesting user's gym")
	ErrInvalidSignature     = errors.New("invalid signature")

	ErrPlanNotFound        = fmt.Errorf("plan %w", ErrNotFound)
	ErrMerchantNotFound    = fmt.Errorf("merchant account %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("payment %w", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrSubscriptionMissing = fmt.Errorf("subscription %w", ErrNotFound)

	ErrMerchantNotOnboarded = errors.New("merchant account is not onboarded for routed payments")
	ErrPaymentNotCaptured   = errors.New("payment is not captured")
	ErrPlanMismatch         = fmt.Errorf("%w: payment was ordered for a different plan", ErrValidation)
	ErrTransferNotFound     = fmt.Errorf("%w: no transfer recorded for routed payment", ErrGateway)
	ErrGatewayTimeout       = fmt.Errorf("%w: timeout", ErrGateway)
	ErrAccountAlreadyExists = errors.New("merchant account already exists")
	ErrAlreadyExists        = errors.New("entity already exists")

	// Store plumbing.
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = fmt.Errorf("%w: operation failed", ErrPersistence)
	ErrReadDatabaseRow    = fmt.Errorf("%w: failed to read row", ErrPersistence)
)

// AccountExistsError is returned by onboarding when the user already owns a
// connected account. It carries the existing identifiers so clients can retry safely.
type AccountExistsError struct {
	MerchantAccountID string
	ExternalAccountID string
	Status            string
}

func (e *AccountExistsError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrAccountAlreadyExists, e.ExternalAccountID, e.Status)
}

func (e *AccountExistsError) Is(target error) bool { return target == ErrAccountAlreadyExists }

// Validationf builds a ValidationError with a user-correctable message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
