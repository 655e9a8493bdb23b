package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"gym-payments/internal/domain/model"
	"gym-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger reports store health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Mount registers extra routes (dev tooling) behind the same middleware.
	Mount func(r chi.Router)
}

// Server exposes the payment use cases over HTTP.
type Server struct {
	orders    usecase.OrderUseCase
	verify    usecase.VerificationUseCase
	webhooks  usecase.WebhookUseCase
	merchants usecase.MerchantUseCase
	subs      usecase.SubscriptionQueryUseCase
	auth      *AuthManager
	db        Pinger
	validate  *validator.Validate
	opts      Options
	log       *zerolog.Logger
}

func NewServer(
	orders usecase.OrderUseCase,
	verify usecase.VerificationUseCase,
	webhooks usecase.WebhookUseCase,
	merchants usecase.MerchantUseCase,
	subs usecase.SubscriptionQueryUseCase,
	auth *AuthManager,
	db Pinger,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		orders:    orders,
		verify:    verify,
		webhooks:  webhooks,
		merchants: merchants,
		subs:      subs,
		auth:      auth,
		db:        db,
		validate:  newRequestValidator(),
		opts:      opts,
		log:       &l,
	}
}

// newRequestValidator reports fields by their json names.
func newRequestValidator() *validator.Validate {
	v := usecase.NewValidator()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}),
	)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhooks/gateway", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Post("/orders", s.handleCreateOrder)
		r.Post("/orders/routed", s.handleCreateRoutedOrder)
		r.Post("/payments/verify", s.handleVerify)
		r.Get("/subscriptions/{id}", s.handleGetSubscription)
		r.With(RequireRole(model.RoleGymOwner, model.RoleAdmin)).Post("/merchants", s.handleCreateMerchant)
	})
	if s.opts.Mount != nil {
		s.opts.Mount(r)
	}
	return r
}

// Run serves addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
