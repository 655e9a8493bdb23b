package model

import (
	"time"

	"gym-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// UserSubscription is a membership activated by a verified payment.
// Only the stored status "active" or "cancelled" is persisted; expiry is derived.
type UserSubscription struct {
	ID                      string
	UserID                  string
	PlanID                  string
	PaymentID               string
	ExternalSubscriptionRef string // external payment id that paid for it
	StartDate               time.Time
	EndDate                 time.Time
	Status                  SubscriptionStatus
	CreatedAt               time.Time
}

// NewActivatedSubscription starts a subscription at start and ends it
// exactly plan.DurationDays calendar days later.
func NewActivatedSubscription(id, userID string, plan *SubscriptionPlan, paymentID, externalRef string, start time.Time) (*UserSubscription, error) {
	if id == "" || userID == "" || plan.IsZero() || plan.DurationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSubscription{
		ID:                      id,
		UserID:                  userID,
		PlanID:                  plan.ID,
		PaymentID:               paymentID,
		ExternalSubscriptionRef: externalRef,
		StartDate:               start,
		EndDate:                 start.AddDate(0, 0, plan.DurationDays),
		Status:                  SubscriptionStatusActive,
		CreatedAt:               start,
	}, nil
}

// EffectiveStatus derives expiry: an active subscription past its end date is expired.
func (s *UserSubscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionStatusActive && now.After(s.EndDate) {
		return SubscriptionStatusExpired
	}
	return s.Status
}
