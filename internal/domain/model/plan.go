package model

import (
	"time"

	"github.com/shopspring/decimal"

	"gym-payments/internal/domain"
)

// SubscriptionPlan is a purchasable gym membership. GymID is nil for
// platform-wide plans; a non-nil GymID makes every order for the plan routed.
type SubscriptionPlan struct {
	ID           string
	GymID        *string
	Name         string
	Price        decimal.Decimal // currency units, e.g. 499.00
	DurationDays int
	IsActive     bool
	CreatedAt    time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// IsMerchantOwned reports whether payments for this plan are split with a gym owner.
func (p *SubscriptionPlan) IsMerchantOwned() bool { return p.GymID != nil && *p.GymID != "" }

// AmountMinor converts the plan price to minor units: round(price × 100).
func (p *SubscriptionPlan) AmountMinor() int64 {
	return p.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NewSubscriptionPlan validates and constructs an active plan.
func NewSubscriptionPlan(id string, gymID *string, name string, price decimal.Decimal, durationDays int) (*SubscriptionPlan, error) {
	if id == "" || name == "" || durationDays <= 0 || !price.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:           id,
		GymID:        gymID,
		Name:         name,
		Price:        price,
		DurationDays: durationDays,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}, nil
}
