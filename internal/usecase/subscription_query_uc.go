package usecase

import (
	"context"
	"errors"
	"time"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

var _ SubscriptionQueryUseCase = (*subscriptionQueryUC)(nil)

type SubscriptionQueryUseCase interface {
	// Get returns the subscription with its status derived at now.
	Get(ctx context.Context, requesterID, subscriptionID string) (*SubscriptionView, error)
}

type SubscriptionView struct {
	Subscription *model.UserSubscription
	Status       model.SubscriptionStatus
}

type subscriptionQueryUC struct {
	subs repository.SubscriptionRepository
	now  func() time.Time
}

func NewSubscriptionQueryUseCase(subs repository.SubscriptionRepository, now func() time.Time) *subscriptionQueryUC {
	if now == nil {
		now = time.Now
	}
	return &subscriptionQueryUC{subs: subs, now: now}
}

func (u *subscriptionQueryUC) Get(ctx context.Context, requesterID, subscriptionID string) (*SubscriptionView, error) {
	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionMissing
		}
		return nil, err
	}
	// Another user's subscription is reported as missing, not forbidden.
	if s.UserID != requesterID {
		return nil, domain.ErrSubscriptionMissing
	}
	return &SubscriptionView{Subscription: s, Status: s.EffectiveStatus(u.now())}, nil
}
