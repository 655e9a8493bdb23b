package repository

import (
	"context"

	"gym-payments/internal/domain/model"
)

// SubscriptionRepository is the port for activated subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.UserSubscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.UserSubscription, error)
}
