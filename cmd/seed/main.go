package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gym-payments/internal/config"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/repository"
	"gym-payments/internal/infra/api"
	pg "gym-payments/internal/infra/db/postgres"
)

// seed writes a small, re-runnable fixture set: one gym with its owner and an
// activated merchant account, one member, a platform plan and a gym plan. It
// prints bearer tokens for each user.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	accountID := flag.String("account", "acc_seed_irontemple", "gateway linked account id for the seeded gym owner")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed bearer tokens")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	dbCfg := cfg.Database
	dbCfg.MaxConns, dbCfg.MinConns = 4, 0
	pool, err := pg.NewPgxPool(ctx, dbCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	users := pg.NewPostgresUserRepo(pool)
	gyms := pg.NewPostgresGymRepo(pool)
	plans := pg.NewPostgresPlanRepo(pool)
	merchants := pg.NewMerchantRepo(pool)
	tm := pg.NewTxManager(pool)

	gymID := "gym-irontemple"
	owner := &model.User{ID: "owner-irontemple", Role: model.RoleGymOwner}
	member := &model.User{ID: "member-asha", GymID: &gymID, Role: model.RoleMember}
	admin := &model.User{ID: "admin-ops", Role: model.RoleAdmin}

	platformPlan, err := model.NewSubscriptionPlan("plan-platform-monthly", nil, "Platform Monthly", decimal.RequireFromString("499.00"), 30)
	if err != nil {
		logger.Fatal().Err(err).Msg("platform plan")
	}
	gymPlan, err := model.NewSubscriptionPlan("plan-irontemple-quarterly", &gymID, "Iron Temple Quarterly", decimal.RequireFromString("1299.00"), 90)
	if err != nil {
		logger.Fatal().Err(err).Msg("gym plan")
	}

	now := time.Now().UTC()
	merchant := &model.MerchantAccount{
		ID:                   "merchant-irontemple",
		UserID:               owner.ID,
		ExternalAccountID:    accountID,
		AccountStatus:        model.AccountStatusActivated,
		CommissionPercentage: decimal.NewFromInt(10),
		IsActive:             true,
		OnboardingCompleted:  true,
		BusinessName:         "Iron Temple LLP",
		BusinessType:         "llp",
		ContactName:          "Gym Owner",
		Email:                "owner@irontemple.test",
		Phone:                "+919876543210",
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, u := range []*model.User{owner, admin} {
			if err := users.Save(ctx, tx, u); err != nil {
				return fmt.Errorf("save user %s: %w", u.ID, err)
			}
		}
		if err := gyms.Save(ctx, tx, &model.Gym{ID: gymID, Name: "Iron Temple", OwnerID: owner.ID}); err != nil {
			return fmt.Errorf("save gym: %w", err)
		}
		if err := users.Save(ctx, tx, member); err != nil {
			return fmt.Errorf("save member: %w", err)
		}
		for _, p := range []*model.SubscriptionPlan{platformPlan, gymPlan} {
			if err := plans.Save(ctx, tx, p); err != nil {
				return fmt.Errorf("save plan %s: %w", p.ID, err)
			}
		}
		if err := merchants.UpsertOnboarding(ctx, tx, merchant); err != nil {
			return fmt.Errorf("save merchant: %w", err)
		}
		return merchants.EnsureSettings(ctx, tx, model.DefaultMerchantSettings(merchant.ID))
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	fmt.Printf("seeded gym %s (merchant %s, account %s)\n", gymID, merchant.ID, *accountID)
	for _, p := range []*model.SubscriptionPlan{platformPlan, gymPlan} {
		fmt.Printf("  plan %-28s price=%s days=%d amount_minor=%d\n", p.ID, p.Price.StringFixed(2), p.DurationDays, p.AmountMinor())
	}

	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	for _, u := range []*model.User{member, owner, admin} {
		tok, err := auth.Mint(u.ID, u.Role, *tokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Printf("  %-9s %-18s Bearer %s\n", u.Role, u.ID, tok)
	}
}
