package usecase

import (
	"context"

	"gym-payments/internal/domain/model"
)

// ActivationCompleter finishes activation for a payment that was recorded
// without a subscription. Used by the background reconciler.
type ActivationCompleter interface {
	CompleteActivation(ctx context.Context, paymentID string) (*model.UserSubscription, error)
}

// EventReplayer re-dispatches a logged webhook event that is still unprocessed.
type EventReplayer interface {
	Replay(ctx context.Context, eventID string) error
}
