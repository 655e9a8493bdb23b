// File: cmd/app/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gym-payments/internal/config"
	"gym-payments/internal/domain/ports/adapter"
	payAdapters "gym-payments/internal/infra/adapters/payment"
	"gym-payments/internal/infra/api"
	pg "gym-payments/internal/infra/db/postgres"
	"gym-payments/internal/infra/logging"
	"gym-payments/internal/infra/metrics"
	red "gym-payments/internal/infra/redis"
	"gym-payments/internal/infra/sched"
	"gym-payments/internal/infra/security"
	"gym-payments/internal/infra/worker"
	"gym-payments/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop gateway allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Gateway.Provider)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	gymRepo := pg.NewPostgresGymRepo(pool)
	planRepo := pg.NewPostgresPlanRepo(pool)
	merchantRepo := pg.NewMerchantRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	routeRepo := pg.NewRouteRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Gateway ----
	var gateway adapter.PaymentGateway
	var noop *payAdapters.NoopPaymentGateway
	switch cfg.Gateway.Provider {
	case "noop":
		noop = payAdapters.NewNoopPaymentGateway()
		gateway = noop
		logger.Warn().Msg("payment gateway: noop (in-memory)")
	default:
		gateway, err = payAdapters.NewRazorpayGateway(payAdapters.RazorpayOptions{
			BaseURL:   cfg.Gateway.BaseURL,
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			Timeout:   cfg.Gateway.Timeout,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("razorpay gateway")
		}
	}
	verifier := security.NewVerifier(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	// ---- Use cases ----
	orderUC := usecase.NewOrderUseCase(planRepo, userRepo, gymRepo, merchantRepo, gateway, rateLimiter,
		usecase.NewReceiptGenerator(time.Now),
		usecase.OrderOptions{Currency: cfg.Gateway.Currency, RateLimit: cfg.RateLimit.Orders, RateWindow: cfg.RateLimit.Window},
		logger)
	verifyUC := usecase.NewVerificationUseCase(verifier, gateway, planRepo, userRepo, merchantRepo, payRepo, routeRepo, subRepo,
		txManager, locker, usecase.VerifyOptions{LockTTL: cfg.Gateway.Timeout + 5*time.Second}, logger)
	webhookUC := usecase.NewWebhookUseCase(verifier, eventRepo, merchantRepo, payRepo, routeRepo, refundRepo, verifyUC, txManager, logger)
	merchantUC := usecase.NewMerchantUseCase(userRepo, merchantRepo, gateway, txManager, usecase.MerchantOptions{
		DefaultCommission: decimal.NewFromFloat(cfg.Marketplace.DefaultCommission),
		OnboardingURL:     cfg.Marketplace.OnboardingURL,
		DefaultCategory:   cfg.Marketplace.Category,
		Dev:               cfg.Runtime.Dev,
	}, logger)
	subQueryUC := usecase.NewSubscriptionQueryUseCase(subRepo, time.Now)

	var wg sync.WaitGroup

	// ---- Reconciler ----
	if cfg.Reconciler.Enabled {
		workers := worker.NewPool(cfg.Reconciler.Workers, logger)
		workers.Start(ctx)
		defer workers.Stop()
		reconciler := sched.NewPaymentReconciler(verifyUC, webhookUC, payRepo, eventRepo, workers, sched.ReconcilerOptions{
			Interval:   cfg.Reconciler.Interval,
			StaleAfter: cfg.Reconciler.StaleAfter,
			BatchSize:  cfg.Reconciler.BatchSize,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reconciler.Run(ctx)
		}()
	}

	// ---- HTTP ----
	opts := api.Options{RequestTimeout: cfg.Server.RequestTimeout, AllowedOrigins: cfg.Server.AllowedOrigins}
	if noop != nil {
		opts.Mount = devRoutes(noop, cfg.Gateway.KeySecret)
	}
	srv := api.NewServer(orderUC, verifyUC, webhookUC, merchantUC, subQueryUC,
		api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer), pool, opts, logger)
	if err := srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
		stop()
	}

	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

// devRoutes lets a local client finish checkout against the noop gateway: it
// captures the order and returns the callback fields the real checkout would.
func devRoutes(gw *payAdapters.NoopPaymentGateway, keySecret string) func(r chi.Router) {
	return func(r chi.Router) {
		r.Post("/dev/orders/{order_id}/capture", func(w http.ResponseWriter, r *http.Request) {
			orderID := chi.URLParam(r, "order_id")
			paymentID, err := gw.Capture(orderID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"order_id":   orderID,
				"payment_id": paymentID,
				"signature":  security.Sign(security.PaymentMessage(orderID, paymentID), keySecret),
			})
		})
	}
}
