package repository

import (
	"context"

	"gym-payments/internal/domain/model"
)

// MerchantAccountRepository persists connected accounts. Status updates are
// field-scoped so a webhook and a retried onboarding call never clobber each other.
type MerchantAccountRepository interface {
	// UpsertOnboarding inserts or updates the row keyed by user_id, touching only
	// onboarding fields (external id, status, business profile).
	UpsertOnboarding(ctx context.Context, tx Tx, m *model.MerchantAccount) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.MerchantAccount, error)
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.MerchantAccount, error)
	// FindByGymID joins gyms.owner_id to the owner's merchant account.
	FindByGymID(ctx context.Context, tx Tx, gymID string) (*model.MerchantAccount, error)
	FindByExternalID(ctx context.Context, tx Tx, externalAccountID string) (*model.MerchantAccount, error)
	// UpdateStatusByExternalID sets account_status (and onboarding_completed when
	// activated). Returns false when no row carries that external id.
	UpdateStatusByExternalID(ctx context.Context, tx Tx, externalAccountID string, status model.AccountStatus, onboardingCompleted bool) (bool, error)
	EnsureSettings(ctx context.Context, tx Tx, s *model.MerchantSettings) error
}
