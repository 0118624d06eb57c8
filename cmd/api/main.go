package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"example.com/gymlog/internal/api"
	"example.com/gymlog/internal/auth"
	"example.com/gymlog/internal/cache"
	"example.com/gymlog/internal/config"
	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/logging"
	"example.com/gymlog/internal/outbox"
	"example.com/gymlog/internal/persistence"
	httptransport "example.com/gymlog/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer handle.Close()

	var names domain.NameCache = cache.NoopCatalog{}
	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, catalog cache disabled")
		} else {
			defer client.Close()
			names = cache.NewRedisCatalog(client, cfg.CatalogCacheTTL)
		}
	}

	gateway := domain.NewGateway(handle.Store,
		domain.WithTokenTTL(cfg.TokenTTL),
		domain.WithBcryptCost(cfg.BcryptCost),
	)
	services := api.Services{
		Gateway: gateway,
		Catalog: domain.NewCatalog(handle.Store, names),
		Ledger:  domain.NewLedger(handle.Store),
		Reader:  domain.NewReader(handle.Store),
	}

	dispatcher := startDispatcher(ctx, cfg, handle, logger)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	guard := auth.NewMiddleware(gateway, auth.Config{Secret: cfg.AdminJWTSecret, Issuer: cfg.AdminJWTIssuer}, logger)
	limiter := auth.NewRateLimiter(cfg.TokenRateLimit, cfg.TokenRateBurst)
	api.NewHandler(services, logger).RegisterRoutes(router, guard, limiter)

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, api.RequestLogger(logger)(api.CORS(cfg.CORSOrigin)(router)))

	logger.WithFields(logrus.Fields{"address": cfg.HTTPAddress, "driver": cfg.StoreDriver}).Info("gymlog api listening")
	if err := httptransport.Run(ctx, server, serverCfg.ShutdownTimeout); err != nil {
		logger.WithError(err).Error("server error")
		stop()
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
	logger.Info("gymlog api stopped")
}

// startDispatcher runs the outbox dispatcher when events have somewhere to go.
func startDispatcher(ctx context.Context, cfg config.Config, handle *persistence.Handle, logger *logrus.Logger) *outbox.Dispatcher {
	if handle.Pool == nil || !cfg.OutboxEnabled || len(cfg.KafkaBrokers) == 0 {
		logger.Info("outbox dispatcher disabled")
		return nil
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	dispatcher := outbox.NewDispatcher(handle.Pool, producer, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go func() {
		dispatcher.Start(ctx)
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("closing kafka writers")
		}
	}()
	return dispatcher
}
