package api

import (
	"net/http"

	"github.com/chasepay/settlement/internal/api/handler"
	"github.com/chasepay/settlement/internal/api/middleware"
	"github.com/chasepay/settlement/internal/idempotency"
	"github.com/chasepay/settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Router wires services and middleware into the HTTP surface.
type Router struct {
	db       *pgxpool.Pool
	redis    redis.Cmdable
	payments *service.PaymentService
	payouts  *service.PayoutService
	disputes *service.DisputeService
	store    service.QueryStore
	idem     *idempotency.Store
	logger   *zap.Logger

	publicRPS   int
	merchantRPS int
}

func NewRouter(
	db *pgxpool.Pool,
	rdb redis.Cmdable,
	store service.QueryStore,
	payments *service.PaymentService,
	payouts *service.PayoutService,
	disputes *service.DisputeService,
	idem *idempotency.Store,
	logger *zap.Logger,
	publicRPS, merchantRPS int,
) *Router {
	return &Router{
		db:          db,
		redis:       rdb,
		store:       store,
		payments:    payments,
		payouts:     payouts,
		disputes:    disputes,
		idem:        idem,
		logger:      logger,
		publicRPS:   publicRPS,
		merchantRPS: merchantRPS,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	paymentHandler := handler.NewPaymentHandler(api.payments, api.idem)
	payoutHandler := handler.NewPayoutHandler(api.payouts)
	disputeHandler := handler.NewDisputeHandler(api.disputes)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.publicRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Merchant routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.MerchantAuth(api.store))
		r.Use(middleware.MerchantRateLimiter(api.merchantRPS))

		r.Post("/v1/payments", paymentHandler.Create)
		r.Get("/v1/payments/{id}", paymentHandler.Get)
		r.Get("/v1/payments/{id}/callbacks", paymentHandler.Callbacks)

		r.Post("/v1/payouts", payoutHandler.Create)
		r.Post("/v1/payouts/{id}/approve", payoutHandler.Approve)
		r.Post("/v1/payouts/{id}/reject", payoutHandler.Reject)
		r.Post("/v1/payouts/{id}/cancel", payoutHandler.Cancel)

		r.Post("/v1/disputes", disputeHandler.Open)
		r.Post("/v1/disputes/{id}/review", disputeHandler.Review)
		r.Post("/v1/disputes/{id}/resolve", disputeHandler.Resolve)
		r.Post("/v1/disputes/{id}/cancel", disputeHandler.Cancel)
		r.Get("/v1/disputes/{id}/messages", disputeHandler.Messages)
	})

	// Trader routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.TraderIdentity)

		r.Get("/v1/payouts/available", payoutHandler.Available)
		r.Post("/v1/payouts/{id}/accept", payoutHandler.Accept)
		r.Post("/v1/payouts/{id}/confirm", payoutHandler.Confirm)
	})

	return r
}
