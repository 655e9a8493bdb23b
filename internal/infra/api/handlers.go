package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gym-payments/internal/domain"
	"gym-payments/internal/infra/logging"
	"gym-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxWebhookBody = 1 << 20

// ----- request/response DTOs -----

type orderRequest struct {
	PlanID   string `json:"plan_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	UserID   string `json:"user_id"`
}

type orderResponse struct {
	Success      bool   `json:"success"`
	OrderID      string `json:"order_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	Routed       bool   `json:"routed"`
	PlanName     string `json:"plan_name,omitempty"`
	MerchantName string `json:"merchant_name,omitempty"`
}

type verifyRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	PlanID    string `json:"plan_id" validate:"required"`
	UserID    string `json:"user_id"`
}

type verifyResponse struct {
	Success        bool      `json:"success"`
	SubscriptionID string    `json:"subscription_id"`
	PaymentID      string    `json:"payment_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Duplicate      bool      `json:"duplicate"`
}

type merchantRequest struct {
	BusinessName string `json:"business_name"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	BusinessType string `json:"business_type"`
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
}

type merchantResponse struct {
	Success           bool   `json:"success"`
	MerchantAccountID string `json:"merchant_account_id"`
	ExternalAccountID string `json:"external_account_id"`
	OnboardingLink    string `json:"onboarding_link"`
	Status            string `json:"status"`
}

type subscriptionResponse struct {
	Success        bool      `json:"success"`
	SubscriptionID string    `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	PaymentID      string    `json:"payment_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         string    `json:"status"`
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Note      string `json:"note,omitempty"`
}

// decode reads a JSON body into v and runs struct validation.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body")
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.Validationf("%s is invalid", verrs[0].Field())
		}
		return domain.Validationf("invalid request")
	}
	return nil
}

// ----- handlers -----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req orderRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// the body may name a user only if it is the caller
	if req.UserID != "" && req.UserID != p.UserID {
		writeError(w, domain.ErrForbidden)
		return
	}
	res, err := s.orders.CreateOrder(r.Context(), usecase.CreateOrderInput{
		PlanID: req.PlanID, UserID: p.UserID, Amount: req.Amount, Currency: req.Currency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

func (s *Server) handleCreateRoutedOrder(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req orderRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID != "" && req.UserID != p.UserID {
		writeError(w, domain.ErrForbidden)
		return
	}
	res, err := s.orders.CreateRoutedOrder(r.Context(), usecase.CreateOrderInput{
		PlanID: req.PlanID, UserID: p.UserID, Amount: req.Amount, Currency: req.Currency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

func toOrderResponse(res *usecase.OrderResult) orderResponse {
	return orderResponse{
		Success:      true,
		OrderID:      res.OrderID,
		Amount:       res.Amount,
		Currency:     res.Currency,
		Receipt:      res.Receipt,
		Routed:       res.Routed,
		PlanName:     res.PlanName,
		MerchantName: res.MerchantName,
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req verifyRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID != "" && req.UserID != p.UserID {
		writeError(w, domain.ErrForbidden)
		return
	}
	act, err := s.verify.VerifyAndActivate(r.Context(), usecase.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		PlanID:    req.PlanID,
		UserID:    p.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	sub := act.Subscription
	writeJSON(w, http.StatusOK, verifyResponse{
		Success:        true,
		SubscriptionID: sub.ID,
		PaymentID:      req.PaymentID,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		Duplicate:      act.Duplicate,
	})
}

// handleWebhook answers 400 only for bad signatures and malformed bodies; any
// other failure is a 5xx so the gateway redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, domain.Validationf("unreadable body"))
		return
	}
	sig := r.Header.Get("X-Razorpay-Signature")
	if sig == "" {
		sig = r.Header.Get("X-Signature")
	}
	ack, err := s.webhooks.HandleEvent(r.Context(), body, sig, r.Header.Get("X-Razorpay-Event-Id"))
	if err != nil {
		code := statusFor(err)
		if code != http.StatusBadRequest {
			code = http.StatusInternalServerError
		}
		msg := err.Error()
		if code != http.StatusBadRequest {
			msg = "event not processed"
		}
		writeJSON(w, code, errorBody{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, EventID: ack.EventID, Duplicate: ack.Duplicate, Note: ack.Note})
}

func (s *Server) handleCreateMerchant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req merchantRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.merchants.CreateMerchantAccount(r.Context(), usecase.OnboardingInput{
		UserID:       p.UserID,
		BusinessName: req.BusinessName,
		ContactName:  req.ContactName,
		Email:        req.Email,
		Phone:        req.Phone,
		BusinessType: req.BusinessType,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merchantResponse{
		Success:           true,
		MerchantAccountID: res.MerchantAccountID,
		ExternalAccountID: res.ExternalAccountID,
		OnboardingLink:    res.OnboardingLink,
		Status:            string(res.Status),
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	v, err := s.subs.Get(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{
		Success:        true,
		SubscriptionID: v.Subscription.ID,
		PlanID:         v.Subscription.PlanID,
		PaymentID:      v.Subscription.PaymentID,
		StartDate:      v.Subscription.StartDate,
		EndDate:        v.Subscription.EndDate,
		Status:         string(v.Status),
	})
}
