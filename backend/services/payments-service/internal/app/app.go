package app

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "coursehub/backend/libs/redis"
	"coursehub/backend/services/payments-service/internal/clients"
	"coursehub/backend/services/payments-service/internal/config"
	"coursehub/backend/services/payments-service/internal/db"
	httpserver "coursehub/backend/services/payments-service/internal/http"
	"coursehub/backend/services/payments-service/internal/http/handlers"
	"coursehub/backend/services/payments-service/internal/http/middleware"
	"coursehub/backend/services/payments-service/internal/metrics"
	"coursehub/backend/services/payments-service/internal/paystack"
	redisstore "coursehub/backend/services/payments-service/internal/redis"
	"coursehub/backend/services/payments-service/internal/repository"
	"coursehub/backend/services/payments-service/internal/service"
)

// App wires payments service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var outcomeCache service.OutcomeCache
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		outcomeCache = redisstore.NewStore(redisClient, cfg.OutcomeTTL())
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	txRepo := repository.NewTransactionRepository(sqlDB)
	enrollmentRepo := repository.NewEnrollmentRepository(sqlDB)

	gateway := paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout, logger)
	catalog := clients.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logger)

	enrollmentService := service.NewEnrollmentService(enrollmentRepo, logger)
	reconcileService := service.NewReconcileService(txRepo, gateway, enrollmentService, outcomeCache, m, logger)
	checkoutService := service.NewCheckoutService(txRepo, gateway, catalog, enrollmentService, logger)

	webhookHandler := handlers.NewWebhookHandler(reconcileService, cfg.Paystack.SecretKey, m, logger)

	routes := httpserver.Routes{
		Webhook:    webhookHandler.ServeHTTP,
		Verify:     handlers.NewVerifyHandler(reconcileService, logger).ServeHTTP,
		Checkout:   handlers.NewCheckoutHandler(checkoutService, logger).ServeHTTP,
		PaymentsMe: handlers.NewPaymentsMeHandler(reconcileService),
		Health:     handlers.NewHealthHandler(),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Auth:       middleware.AuthMiddleware(cfg.Auth.JWTSecret),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
