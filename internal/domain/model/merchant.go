package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusNone               AccountStatus = "none"
	AccountStatusCreated            AccountStatus = "created"
	AccountStatusNeedsClarification AccountStatus = "needs_clarification"
	AccountStatusActivated          AccountStatus = "activated"
	AccountStatusSuspended          AccountStatus = "suspended"
	AccountStatusRejected           AccountStatus = "rejected"
)

// accountTransitions lists the legal forward moves of a connected account.
// needs_clarification may resolve either way once KYC documents are resubmitted.
var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusNone:               {AccountStatusCreated},
	AccountStatusCreated:            {AccountStatusActivated, AccountStatusNeedsClarification, AccountStatusSuspended, AccountStatusRejected},
	AccountStatusNeedsClarification: {AccountStatusActivated, AccountStatusSuspended, AccountStatusRejected},
	AccountStatusActivated:          {AccountStatusSuspended},
	AccountStatusSuspended:          {AccountStatusActivated},
}

// CanTransition reports whether from -> to is a legal status move.
// Re-applying the current status is always allowed (idempotent replay).
func (s AccountStatus) CanTransition(to AccountStatus) bool {
	if s == to {
		return true
	}
	for _, next := range accountTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusNone, AccountStatusCreated, AccountStatusNeedsClarification,
		AccountStatusActivated, AccountStatusSuspended, AccountStatusRejected:
		return true
	}
	return false
}

// MerchantAccount is a gym owner's connected (linked) account at the gateway.
type MerchantAccount struct {
	ID                   string
	UserID               string
	ExternalAccountID    *string
	AccountStatus        AccountStatus
	CommissionPercentage decimal.Decimal // 0..100
	IsActive             bool
	OnboardingCompleted  bool

	BusinessName string
	BusinessType string
	ContactName  string
	Email        string
	Phone        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanReceiveTransfers is the precondition for creating a transfer-bearing order.
func (m *MerchantAccount) CanReceiveTransfers() bool {
	return m != nil &&
		m.AccountStatus == AccountStatusActivated &&
		m.OnboardingCompleted &&
		m.IsActive &&
		m.ExternalAccountID != nil && *m.ExternalAccountID != ""
}

func (m *MerchantAccount) ExternalID() string {
	if m == nil || m.ExternalAccountID == nil {
		return ""
	}
	return *m.ExternalAccountID
}

// MerchantSettings holds payout preferences created alongside the account.
type MerchantSettings struct {
	MerchantAccountID string
	AutoTransfer      bool
	SettlementHold    bool
	CreatedAt         time.Time
}

func DefaultMerchantSettings(merchantAccountID string) *MerchantSettings {
	return &MerchantSettings{
		MerchantAccountID: merchantAccountID,
		AutoTransfer:      true,
		SettlementHold:    false,
		CreatedAt:         time.Now(),
	}
}

// Split is the division of a routed payment between gym owner and platform.
type Split struct {
	Total              int64
	MerchantAmount     int64
	PlatformCommission int64
}

// ComputeSplit floors the commission so that commission + merchant share never
// exceeds the total: commission = floor(total × pct / 100).
func ComputeSplit(total int64, commissionPercentage decimal.Decimal) Split {
	commission := decimal.NewFromInt(total).
		Mul(commissionPercentage).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	if commission < 0 {
		commission = 0
	}
	if commission > total {
		commission = total
	}
	return Split{
		Total:              total,
		MerchantAmount:     total - commission,
		PlatformCommission: commission,
	}
}
