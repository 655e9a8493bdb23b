package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gym-payments/internal/domain"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`

	// set on 409 from onboarding
	MerchantAccountID string `json:"merchant_account_id,omitempty"`
	ExternalAccountID string `json:"external_account_id,omitempty"`
	Status            string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrMerchantNotOnboarded),
		errors.Is(err, domain.ErrPaymentNotCaptured):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrCrossTenantViolation):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders {success:false, error}. Server-side failures get a generic message.
func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	switch code {
	case http.StatusInternalServerError:
		body.Error = "internal error"
	case http.StatusBadGateway:
		body.Error = "payment gateway unavailable, please retry"
	}
	var exists *domain.AccountExistsError
	if errors.As(err, &exists) {
		body.MerchantAccountID = exists.MerchantAccountID
		body.ExternalAccountID = exists.ExternalAccountID
		body.Status = exists.Status
	}
	writeJSON(w, code, body)
}
