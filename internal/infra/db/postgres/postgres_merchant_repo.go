package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
)

var _ repository.MerchantAccountRepository = (*merchantRepo)(nil)

type merchantRepo struct{ pool *pgxpool.Pool }

func NewMerchantRepo(pool *pgxpool.Pool) *merchantRepo {
	return &merchantRepo{pool: pool}
}

const merchantColumns = `m.id, m.user_id, m.external_account_id, m.account_status, m.commission_percentage,
  m.is_active, m.onboarding_completed, m.business_name, m.business_type, m.contact_name,
  m.email, m.phone, m.created_at, m.updated_at`

// UpsertOnboarding never touches commission_percentage or is_active of an
// existing row, and never clears onboarding_completed.
func (r *merchantRepo) UpsertOnboarding(ctx context.Context, tx repository.Tx, m *model.MerchantAccount) error {
	const q = `
INSERT INTO merchant_accounts (
  id, user_id, external_account_id, account_status, commission_percentage, is_active,
  onboarding_completed, business_name, business_type, contact_name, email, phone, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (user_id) DO UPDATE SET
  external_account_id  = EXCLUDED.external_account_id,
  account_status       = EXCLUDED.account_status,
  onboarding_completed = merchant_accounts.onboarding_completed OR EXCLUDED.onboarding_completed,
  business_name        = EXCLUDED.business_name,
  business_type        = EXCLUDED.business_type,
  contact_name         = EXCLUDED.contact_name,
  email                = EXCLUDED.email,
  phone                = EXCLUDED.phone,
  updated_at           = EXCLUDED.updated_at
RETURNING id, commission_percentage;`
	row, err := pickRow(ctx, r.pool, tx, q,
		m.ID, m.UserID, m.ExternalAccountID, string(m.AccountStatus), m.CommissionPercentage, m.IsActive,
		m.OnboardingCompleted, m.BusinessName, m.BusinessType, m.ContactName, m.Email, m.Phone, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := row.Scan(&m.ID, &m.CommissionPercentage); err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *merchantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MerchantAccount, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+merchantColumns+` FROM merchant_accounts m WHERE m.id = $1`, tx), id)
}

func (r *merchantRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.MerchantAccount, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+merchantColumns+` FROM merchant_accounts m WHERE m.user_id = $1`, tx), userID)
}

func (r *merchantRepo) FindByGymID(ctx context.Context, tx repository.Tx, gymID string) (*model.MerchantAccount, error) {
	q := `SELECT ` + merchantColumns + `
  FROM merchant_accounts m
  JOIN gyms g ON g.owner_id = m.user_id
 WHERE g.id = $1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE OF m"
	}
	return r.queryOne(ctx, tx, q+";", gymID)
}

func (r *merchantRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalAccountID string) (*model.MerchantAccount, error) {
	return r.queryOne(ctx, tx, forUpdate(`SELECT `+merchantColumns+` FROM merchant_accounts m WHERE m.external_account_id = $1`, tx), externalAccountID)
}

func (r *merchantRepo) UpdateStatusByExternalID(ctx context.Context, tx repository.Tx, externalAccountID string, status model.AccountStatus, onboardingCompleted bool) (bool, error) {
	const q = `
UPDATE merchant_accounts
   SET account_status = $2,
       onboarding_completed = onboarding_completed OR $3,
       updated_at = NOW()
 WHERE external_account_id = $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, externalAccountID, string(status), onboardingCompleted)
	if err != nil {
		return false, writeErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *merchantRepo) EnsureSettings(ctx context.Context, tx repository.Tx, s *model.MerchantSettings) error {
	const q = `
INSERT INTO merchant_settings (merchant_account_id, auto_transfer, settlement_hold, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (merchant_account_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, s.MerchantAccountID, s.AutoTransfer, s.SettlementHold, s.CreatedAt)
	return writeErr(err)
}

func (r *merchantRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.MerchantAccount, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var m model.MerchantAccount
	var status string
	if err := row.Scan(
		&m.ID, &m.UserID, &m.ExternalAccountID, &status, &m.CommissionPercentage,
		&m.IsActive, &m.OnboardingCompleted, &m.BusinessName, &m.BusinessType, &m.ContactName,
		&m.Email, &m.Phone, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, scanErr(err)
	}
	m.AccountStatus = model.AccountStatus(status)
	return &m, nil
}
