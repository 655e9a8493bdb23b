//go:build !integration

package api

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/usecase"
)

type MockOrderUC struct {
	CreateOrderFunc       func(ctx context.Context, in usecase.CreateOrderInput) (*usecase.OrderResult, error)
	CreateRoutedOrderFunc func(ctx context.Context, in usecase.CreateOrderInput) (*usecase.OrderResult, error)
	Last                  usecase.CreateOrderInput
}

func (m *MockOrderUC) CreateOrder(ctx context.Context, in usecase.CreateOrderInput) (*usecase.OrderResult, error) {
	m.Last = in
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, in)
	}
	return &usecase.OrderResult{OrderID: "order_1", Amount: in.Amount, Currency: "INR", Receipt: "rcpt_1"}, nil
}

func (m *MockOrderUC) CreateRoutedOrder(ctx context.Context, in usecase.CreateOrderInput) (*usecase.OrderResult, error) {
	m.Last = in
	if m.CreateRoutedOrderFunc != nil {
		return m.CreateRoutedOrderFunc(ctx, in)
	}
	return &usecase.OrderResult{
		OrderID: "order_2", Amount: in.Amount, Currency: "INR", Routed: true,
		PlanName: "Monthly", MerchantName: "Iron Temple",
	}, nil
}

type MockVerifyUC struct {
	VerifyAndActivateFunc func(ctx context.Context, in usecase.VerifyInput) (*usecase.Activation, error)
	Last                  usecase.VerifyInput
}

func (m *MockVerifyUC) VerifyAndActivate(ctx context.Context, in usecase.VerifyInput) (*usecase.Activation, error) {
	m.Last = in
	if m.VerifyAndActivateFunc != nil {
		return m.VerifyAndActivateFunc(ctx, in)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &usecase.Activation{Subscription: &model.UserSubscription{
		ID: "sub-1", UserID: in.UserID, PlanID: in.PlanID, StartDate: start, EndDate: start.AddDate(0, 0, 30),
	}}, nil
}

func (m *MockVerifyUC) ActivateCaptured(ctx context.Context, gp *adapter.GatewayPayment, userID, planID string) (*usecase.Activation, error) {
	return nil, nil
}

func (m *MockVerifyUC) CompleteActivation(ctx context.Context, paymentID string) (*model.UserSubscription, error) {
	return nil, nil
}

type MockWebhookUC struct {
	HandleEventFunc func(ctx context.Context, rawBody []byte, signature, deliveryID string) (*usecase.WebhookAck, error)
	Signature       string
	DeliveryID      string
	Body            []byte
}

func (m *MockWebhookUC) HandleEvent(ctx context.Context, rawBody []byte, signature, deliveryID string) (*usecase.WebhookAck, error) {
	m.Body, m.Signature, m.DeliveryID = rawBody, signature, deliveryID
	if m.HandleEventFunc != nil {
		return m.HandleEventFunc(ctx, rawBody, signature, deliveryID)
	}
	return &usecase.WebhookAck{EventID: "acc_1@1", EventType: "account.activated"}, nil
}

func (m *MockWebhookUC) Replay(ctx context.Context, eventID string) error { return nil }

type MockMerchantUC struct {
	CreateMerchantAccountFunc func(ctx context.Context, in usecase.OnboardingInput) (*usecase.OnboardingResult, error)
	Last                      usecase.OnboardingInput
}

func (m *MockMerchantUC) CreateMerchantAccount(ctx context.Context, in usecase.OnboardingInput) (*usecase.OnboardingResult, error) {
	m.Last = in
	if m.CreateMerchantAccountFunc != nil {
		return m.CreateMerchantAccountFunc(ctx, in)
	}
	return &usecase.OnboardingResult{
		MerchantAccountID: "merchant-1", ExternalAccountID: "acc_1",
		OnboardingLink: "https://gw.test/kyc/acc_1", Status: model.AccountStatusCreated,
	}, nil
}

type MockSubscriptionQueryUC struct {
	GetFunc func(ctx context.Context, requesterID, subscriptionID string) (*usecase.SubscriptionView, error)
}

func (m *MockSubscriptionQueryUC) Get(ctx context.Context, requesterID, subscriptionID string) (*usecase.SubscriptionView, error) {
	return m.GetFunc(ctx, requesterID, subscriptionID)
}

type MockPinger struct{ Err error }

func (m *MockPinger) Ping(ctx context.Context) error { return m.Err }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
