package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmcastellanos/storefront-backend/api/controllers"
	webhookcontrollers "github.com/dmcastellanos/storefront-backend/api/controllers/webhooks"
	"github.com/dmcastellanos/storefront-backend/api/middleware"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	paypalwebhooks "github.com/dmcastellanos/storefront-backend/internal/webhooks/paypal"
	"github.com/dmcastellanos/storefront-backend/pkg/config"
	"github.com/dmcastellanos/storefront-backend/pkg/db"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
	"github.com/dmcastellanos/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	paypalClient *paypal.Client,
	settlementSvc *payments.Service,
	refundSvc controllers.RefundService,
	giftCardSvc controllers.GiftCardBalanceService,
	webhookSvc *paypalwebhooks.Service,
	webhookGuard *paypalwebhooks.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paypal", webhookcontrollers.PayPalWebhook(webhookSvc, paypalClient, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(settlementSvc, logg))
			r.Get("/{orderId}", controllers.GetOrder(settlementSvc, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(settlementSvc, logg))
			r.Post("/{orderId}/refund", controllers.RefundOrder(refundSvc, logg))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-session", controllers.CreateSession(settlementSvc, logg))
			r.Post("/capture", controllers.CaptureOrder(settlementSvc, logg))
		})
		r.Get("/gift-cards/{code}/balance", controllers.GiftCardBalance(giftCardSvc, logg))
	})

	return r
}
