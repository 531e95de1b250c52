package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmcastellanos/storefront-backend/api/routes"
	"github.com/dmcastellanos/storefront-backend/internal/catalog"
	"github.com/dmcastellanos/storefront-backend/internal/giftcards"
	"github.com/dmcastellanos/storefront-backend/internal/inventory"
	"github.com/dmcastellanos/storefront-backend/internal/orders"
	"github.com/dmcastellanos/storefront-backend/internal/payments"
	"github.com/dmcastellanos/storefront-backend/internal/refunds"
	paypalwebhooks "github.com/dmcastellanos/storefront-backend/internal/webhooks/paypal"
	"github.com/dmcastellanos/storefront-backend/pkg/config"
	"github.com/dmcastellanos/storefront-backend/pkg/db"
	"github.com/dmcastellanos/storefront-backend/pkg/logger"
	"github.com/dmcastellanos/storefront-backend/pkg/metrics"
	"github.com/dmcastellanos/storefront-backend/pkg/migrate"
	"github.com/dmcastellanos/storefront-backend/pkg/outbox"
	"github.com/dmcastellanos/storefront-backend/pkg/paypal"
	"github.com/dmcastellanos/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paypalClient, err := paypal.NewClient(context.Background(), cfg.PayPal, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap paypal client", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	giftCardSvc, err := giftcards.NewService(giftcards.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create gift cards service", err)
		os.Exit(1)
	}
	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	resolver, err := catalog.NewResolver(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog resolver", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	settlementSvc, err := payments.NewService(
		dbClient,
		orderSvc,
		giftCardSvc,
		inventorySvc,
		resolver,
		outboxSvc,
		paypalClient,
		cfg.Settlement,
		cfg.PayPal.Currency,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	refundSvc, err := refunds.NewService(
		dbClient,
		orderSvc,
		giftCardSvc,
		inventorySvc,
		outboxSvc,
		paypalClient,
		cfg.Settlement,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
		os.Exit(1)
	}

	webhookSvc, err := paypalwebhooks.NewService(settlementSvc, refundSvc, orderSvc, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}
	webhookGuard, err := paypalwebhooks.NewIdempotencyGuard(redisClient, cfg.Settlement.WebhookGuardTTL(), "webhook:paypal")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			paypalClient,
			settlementSvc,
			refundSvc,
			giftCardSvc,
			webhookSvc,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
